package cmd

import (
	"fmt"

	"github.com/devboard/canharness"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List available bus controller adapters",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, a := range canharness.ListAdapters() {
			fmt.Fprintln(cmd.OutOrStdout(), a.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(adaptersCmd)
}

func selectAdapter() (string, error) {
	names := canharness.ListAdapterNames()
	if len(names) == 0 {
		return "", fmt.Errorf("no adapters registered")
	}
	prompt := promptui.Select{
		Label: "Select adapter",
		Items: names,
	}
	_, result, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return result, nil
}

// resolveAdapter falls back to the in-memory bus when no name is given and
// only prompts when asked to.
func resolveAdapter(name string) (string, error) {
	switch name {
	case "":
		return defaultAdapter, nil
	case promptAdapter:
		return selectAdapter()
	}
	return name, nil
}

func newController(cmd *cobra.Command) (canharness.Controller, error) {
	pf := cmd.Flags()
	name, err := pf.GetString(flagAdapter)
	if err != nil {
		return nil, err
	}
	if name, err = resolveAdapter(name); err != nil {
		return nil, err
	}
	port, err := pf.GetString(flagPort)
	if err != nil {
		return nil, err
	}
	baudrate, err := pf.GetInt(flagBaudrate)
	if err != nil {
		return nil, err
	}
	debug, err := pf.GetBool(flagDebug)
	if err != nil {
		return nil, err
	}
	return canharness.NewAdapter(name, &canharness.AdapterConfig{
		Debug:        debug,
		Port:         port,
		PortBaudrate: baudrate,
		OnMessage: func(msg string) {
			logger.Debug(msg)
		},
	})
}
