package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mendgate/internal/fingerprint"
	"mendgate/internal/types"
)

var fingerprintEventPath string

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint [description]",
	Short: "Compute the stable fingerprint of an error",
	Long: `Computes the 16-hex fingerprint and 8-hex coarse fingerprint of an
error, either from an event JSON file (--event) or from a description given
as arguments.

Example:
  mend fingerprint "ModuleNotFoundError: No module named 'requests'"`,
	RunE: runFingerprint,
}

func init() {
	fingerprintCmd.Flags().StringVar(&fingerprintEventPath, "event", "", "path to an error event JSON file")
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	var event types.ErrorEvent
	switch {
	case fingerprintEventPath != "":
		if err := readJSON(fingerprintEventPath, &event); err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
	case len(args) > 0:
		event.Description = strings.Join(args, " ")
		event.Source = types.SourceTerminal
	default:
		return fmt.Errorf("provide --event or an error description")
	}

	fingerprint.Apply(&event)

	out, err := json.MarshalIndent(map[string]string{
		"fingerprint":        event.Fingerprint,
		"fingerprint_coarse": event.FingerprintCoarse,
		"error_type":         fingerprint.ExtractErrorType(&event),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
