package generation

import "fmt"

// GraphParams describes one SDXL text-to-image pass.
type GraphParams struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	CFG            float64
	Model          string
	Seed           int64
	FilenamePrefix string
}

// BuildGraph returns the ComfyUI API-format node graph for p.
//
// Node 4 loads the checkpoint, 1 and 2 encode the prompts, 5 allocates the
// latent, 3 samples, 6 decodes and 7 saves.
func BuildGraph(p GraphParams) map[string]interface{} {
	ref := func(node string, slot int) []interface{} { return []interface{}{node, slot} }

	return map[string]interface{}{
		"1": node("CLIPTextEncode", map[string]interface{}{
			"text": p.Prompt,
			"clip": ref("4", 1),
		}),
		"2": node("CLIPTextEncode", map[string]interface{}{
			"text": p.NegativePrompt,
			"clip": ref("4", 1),
		}),
		"3": node("KSampler", map[string]interface{}{
			"seed":         p.Seed,
			"steps":        p.Steps,
			"cfg":          p.CFG,
			"sampler_name": "euler",
			"scheduler":    "normal",
			"denoise":      1.0,
			"model":        ref("4", 0),
			"positive":     ref("1", 0),
			"negative":     ref("2", 0),
			"latent_image": ref("5", 0),
		}),
		"4": node("CheckpointLoaderSimple", map[string]interface{}{
			"ckpt_name": fmt.Sprintf("%s.safetensors", p.Model),
		}),
		"5": node("EmptyLatentImage", map[string]interface{}{
			"width":      p.Width,
			"height":     p.Height,
			"batch_size": 1,
		}),
		"6": node("VAEDecode", map[string]interface{}{
			"samples": ref("3", 0),
			"vae":     ref("4", 2),
		}),
		"7": node("SaveImage", map[string]interface{}{
			"filename_prefix": p.FilenamePrefix,
			"images":          ref("6", 0),
		}),
	}
}

func node(classType string, inputs map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"class_type": classType,
		"inputs":     inputs,
	}
}
