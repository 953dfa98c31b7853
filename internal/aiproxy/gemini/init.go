package gemini

import "peerprep/interview/internal/aiproxy"

// Register the Gemini provider on package import, mirroring the teacher's
// ai/internal/llm/gemini/init.go exactly.
func init() {
	aiproxy.RegisterProvider("gemini", func() (aiproxy.Provider, error) {
		cfg, err := NewConfig()
		if err != nil {
			return nil, err
		}
		return NewClient(cfg)
	})
}
