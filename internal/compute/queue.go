package compute

import (
	"errors"
	"fmt"
	"sync"
)

// ErrQueueClosed is returned when work is submitted to a closed queue.
var ErrQueueClosed = errors.New("compute: queue closed")

type command struct {
	name string
	fn   func() error
	done chan struct{}
}

// Queue executes commands one at a time in submission order on a dedicated
// goroutine.
//
// The first failing command makes the queue sticky: later commands are
// skipped and every Finish returns that error.
type Queue struct {
	cmds chan command

	sendMu sync.Mutex
	closed bool

	errMu sync.Mutex
	err   error

	wg sync.WaitGroup
}

// NewQueue starts a queue that buffers up to depth pending commands.
func NewQueue(depth int) *Queue {
	if depth < 1 {
		depth = 1
	}
	q := &Queue{cmds: make(chan command, depth)}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer q.wg.Done()

	for c := range q.cmds {
		if c.fn != nil && q.Err() == nil {
			if err := c.fn(); err != nil {
				q.errMu.Lock()
				if q.err == nil {
					q.err = fmt.Errorf("%s: %w", c.name, err)
				}
				q.errMu.Unlock()
			}
		}
		if c.done != nil {
			close(c.done)
		}
	}
}

// Enqueue submits fn without waiting for it to run.
func (q *Queue) Enqueue(name string, fn func() error) error {
	return q.submit(command{name: name, fn: fn})
}

// Do submits fn and waits for it to run. It returns the queue error.
func (q *Queue) Do(name string, fn func() error) error {
	done := make(chan struct{})
	if err := q.submit(command{name: name, fn: fn, done: done}); err != nil {
		return err
	}
	<-done
	return q.Err()
}

// Finish waits until every previously submitted command has run.
func (q *Queue) Finish() error {
	return q.Do("finish", nil)
}

func (q *Queue) submit(c command) error {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.cmds <- c
	return nil
}

// Err returns the sticky error, if any.
func (q *Queue) Err() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	return q.err
}

// Close drains pending commands and stops the queue goroutine.
func (q *Queue) Close() error {
	q.sendMu.Lock()
	if q.closed {
		q.sendMu.Unlock()
		return nil
	}
	q.closed = true
	close(q.cmds)
	q.sendMu.Unlock()

	q.wg.Wait()
	return q.Err()
}
