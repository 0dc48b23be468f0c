//go:build !nogpu

package gpu

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/gogpu/naga"

	"github.com/gogpu/boxblur"
	"github.com/gogpu/boxblur/internal/subblock"
)

// Kernel sources are templates over the workgroup shape, which WGSL needs
// as a constant.
//
//go:embed shaders/*.wgsl
var shaderFS embed.FS

var shaders = template.Must(template.ParseFS(shaderFS, "shaders/*.wgsl"))

// paramsKernel builds the subblock parameter table.
const paramsKernel = "params"

// pipelineKey identifies a compiled kernel: a blur strategy or paramsKernel,
// and its workgroup shape.
type pipelineKey struct {
	kernel string
	x, y   int
}

func strategyKey(s boxblur.Strategy, x, y int) pipelineKey {
	return pipelineKey{kernel: s.String(), x: x, y: y}
}

func (k pipelineKey) String() string {
	return fmt.Sprintf("%s-%dx%d", k.kernel, k.x, k.y)
}

type shaderData struct {
	X, Y, Area int
	MaxBlocks  int
	MaxRadius  int
	Square     bool
	Params     bool
}

// shaderSource renders the WGSL kernel for k.
func shaderSource(k pipelineKey) (string, error) {
	if k.x < 1 || k.y < 1 {
		return "", fmt.Errorf("gpu: bad workgroup %dx%d", k.x, k.y)
	}
	data := shaderData{
		X:         k.x,
		Y:         k.y,
		Area:      k.x * k.y,
		MaxBlocks: subblock.MaxBlocks,
		MaxRadius: subblock.MaxRadius,
		Square:    k.x == k.y,
		Params:    k.kernel == boxblur.Subblock.String(),
	}

	var sb strings.Builder
	if err := shaders.ExecuteTemplate(&sb, k.kernel+".wgsl", data); err != nil {
		return "", fmt.Errorf("gpu: render %s shader: %w", k, err)
	}
	return sb.String(), nil
}

// compileSPIRV compiles WGSL source to SPIR-V words.
func compileSPIRV(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
