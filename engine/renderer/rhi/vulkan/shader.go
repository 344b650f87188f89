package vulkan

import (
	"fmt"

	"github.com/gogpu/naga"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

// compileWGSL turns WGSL source into SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	code, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("wgsl compile: %w", err)
	}
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("wgsl compile: spir-v size %d is not a multiple of 4", len(code))
	}
	return spirvWords(code), nil
}

func createShaderModule(c *Context, stage rhi.ShaderStage) (vk.ShaderModule, error) {
	words, err := compileWGSL(stage.Source)
	if err != nil {
		return vk.NullShaderModule, err
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(words) * 4),
		PCode:    words,
	}
	var module vk.ShaderModule
	err = c.locks.SafeCall(ShaderManagement, func() error {
		return resultError("vkCreateShaderModule", vk.CreateShaderModule(c.Device, &createInfo, c.Allocator, &module))
	})
	return module, err
}

func entryPoint(stage rhi.ShaderStage, fallback string) string {
	if stage.EntryPoint != "" {
		return stage.EntryPoint
	}
	return fallback
}
