package ai_model

import (
	"fmt"
	"os"
	"strings"
)

// ReadPromptFile loads a system prompt kept next to the deployment.
func ReadPromptFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", path, err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", fmt.Errorf("prompt %s is empty", path)
	}
	return text, nil
}
