//go:build ignore

package main

import (
	"fmt"
	"os"

	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

func main() {
	if err := os.MkdirAll("schemas", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}

	data, err := workflow.GenerateJSONSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("schemas/workflow-v1.json", data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/workflow-v1.json")

	nodeData, err := workflow.GenerateMCPNodeJSONSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error generating mcp node schema: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("schemas/mcp-node-v1.json", nodeData, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/mcp-node-v1.json")
}
