package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/wfstudio/pkg/client"
	"github.com/ormasoftchile/wfstudio/pkg/prompt"
	"github.com/ormasoftchile/wfstudio/pkg/tui"
	"github.com/ormasoftchile/wfstudio/pkg/wizard"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

var (
	wizardPlain  bool
	wizardAddTo  string
	wizardEdit   string
	wizardNodeID string
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Create or edit an MCP node interactively",
	Long: `Walk through server, tool and parameter selection to build an MCP node.

Without --add-to or --edit the node data is printed as JSON. With --add-to the
node is appended to a saved workflow; with --edit and --node an existing MCP
node is reopened at its last step and updated in place.`,
	Args: cobra.NoArgs,
	RunE: runWizard,
}

func runWizard(cmd *cobra.Command, args []string) error {
	if wizardEdit != "" && wizardNodeID == "" {
		return fmt.Errorf("--edit requires --node")
	}
	if wizardEdit != "" && wizardAddTo != "" {
		return fmt.Errorf("--edit and --add-to are mutually exclusive")
	}

	return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
		var (
			wf  *workflow.Workflow
			wiz *wizard.Wizard
			err error
		)
		switch {
		case wizardEdit != "":
			if wf, err = c.LoadWorkflow(ctx, wizardEdit); err != nil {
				return err
			}
			if wiz, err = editWizard(wf, wizardNodeID); err != nil {
				return err
			}
		case wizardAddTo != "":
			if wf, err = c.LoadWorkflow(ctx, wizardAddTo); err != nil {
				return err
			}
		}

		data, err := runFrontEnd(ctx, c, wiz)
		if errors.Is(err, tui.ErrAborted) || errors.Is(err, prompt.ErrAborted) {
			fmt.Fprintln(os.Stderr, "Wizard cancelled.")
			return nil
		}
		if err != nil {
			return err
		}

		if wf == nil {
			return printJSON(os.Stdout, data)
		}
		if wizardEdit != "" {
			if err := wf.UpdateMCPNode(wizardNodeID, data); err != nil {
				return err
			}
		} else {
			n, err := wf.AddMCPNode("", data)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Added node %s (%s); connect it on the canvas.\n", n.ID, n.Name)
		}
		res, err := c.SaveWorkflow(ctx, wf, true)
		if err != nil {
			return err
		}
		fmt.Printf("✓ saved %s\n", res.Path)
		return nil
	})
}

// editWizard reopens the wizard on an MCP node of wf.
func editWizard(wf *workflow.Workflow, nodeID string) (*wizard.Wizard, error) {
	n, err := wf.Node(nodeID)
	if err != nil {
		return nil, err
	}
	data, ok := n.Data.(workflow.MCPNodeData)
	if !ok {
		return nil, fmt.Errorf("node %q is a %s node, not mcp", nodeID, n.Type)
	}
	return wizard.Edit(data, "")
}

// runFrontEnd shows the full-screen wizard on a terminal and the line-mode
// prompt otherwise or when --plain is set.
func runFrontEnd(ctx context.Context, c *client.Client, wiz *wizard.Wizard) (workflow.MCPNodeData, error) {
	if wizardPlain || !isatty.IsTerminal(os.Stdout.Fd()) {
		return prompt.Run(ctx, prompt.NewSession(c, wiz, os.Stdout))
	}
	opts := []tui.Option{tui.WithContext(ctx)}
	if wiz != nil {
		opts = append(opts, tui.WithWizard(wiz))
	}
	return tui.Run(ctx, c, opts...)
}

func init() {
	wizardCmd.Flags().BoolVar(&wizardPlain, "plain", false, "Use the line-mode prompt instead of the full-screen UI")
	wizardCmd.Flags().StringVar(&wizardAddTo, "add-to", "", "Append the node to this saved workflow")
	wizardCmd.Flags().StringVar(&wizardEdit, "edit", "", "Saved workflow containing the node to edit")
	wizardCmd.Flags().StringVar(&wizardNodeID, "node", "", "ID of the MCP node to edit (with --edit)")
}
