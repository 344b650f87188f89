package testbed

import (
	"embed"
	"fmt"

	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

//go:embed shaders/*.wgsl
var shaderFS embed.FS

// shader loads a WGSL file with the shared helpers prepended.
func shader(file, entryPoint string) (rhi.ShaderStage, error) {
	common, err := shaderFS.ReadFile("shaders/common.wgsl")
	if err != nil {
		return rhi.ShaderStage{}, err
	}
	src, err := shaderFS.ReadFile("shaders/" + file)
	if err != nil {
		return rhi.ShaderStage{}, fmt.Errorf("failed to load shader %s: %w", file, err)
	}
	return rhi.ShaderStage{Source: string(common) + "\n" + string(src), EntryPoint: entryPoint}, nil
}

// shaderSet holds every stage the testbed passes use.
type shaderSet struct {
	sceneVertex   rhi.ShaderStage
	sceneFragment rhi.ShaderStage
	bloom         rhi.ShaderStage
	postVertex    rhi.ShaderStage
	postFragment  rhi.ShaderStage
	uiVertex      rhi.ShaderStage
	uiFragment    rhi.ShaderStage
}

func loadShaders() (*shaderSet, error) {
	s := &shaderSet{}
	stages := []struct {
		dst   *rhi.ShaderStage
		file  string
		entry string
	}{
		{&s.sceneVertex, "scene.wgsl", "vs_main"},
		{&s.sceneFragment, "scene.wgsl", "fs_main"},
		{&s.bloom, "bloom.wgsl", "cs_main"},
		{&s.postVertex, "post.wgsl", "vs_main"},
		{&s.postFragment, "post.wgsl", "fs_main"},
		{&s.uiVertex, "ui.wgsl", "vs_main"},
		{&s.uiFragment, "ui.wgsl", "fs_main"},
	}
	for _, st := range stages {
		stage, err := shader(st.file, st.entry)
		if err != nil {
			return nil, err
		}
		*st.dst = stage
	}
	return s, nil
}
