package relay

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/dRelay/cmd/util"
	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	submitCmd = &cobra.Command{
		Use:   "submit [apdu...]",
		Short: "Relays command APDUs and prints the responses",
		Long: `Relays each command APDU (hex, e.g. "00A4040007A0000000041010") the way the
card-emulation side does: failures are answered with 6F00. The APDUs can also be
read from a script file with one APDU per line (lines starting with # are ignored).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			apdus, err := collectAPDUs(args, viper.GetString("script"))
			if err != nil {
				return err
			}
			if len(apdus) == 0 {
				return fmt.Errorf("no APDU given")
			}

			fmt.Printf("Target: %s (%s)\n", relayClient.Target(), relayConfig.Mode)
			for _, apdu := range apdus {
				resp := relayClient.ProcessCommand(apdu)
				fmt.Printf(">> %s\n<< %s%s\n", common.FormatAPDU(apdu), common.FormatAPDU(resp), describeStatus(resp))
			}
			return nil
		},
	}
	forwardCmd = &cobra.Command{
		Use:   "forward [apdu]",
		Short: "Sends one APDU over a new connection and prints the response or the error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apdu, err := common.ParseAPDU(args[0])
			if err != nil {
				return err
			}

			tgt := relayConfig.Target
			resp, err := relayForwarder.Forward(tgt.Host, tgt.Port, apdu, relayConfig.RequestTimeout)
			if err != nil {
				return fmt.Errorf("forward to %s failed (%s): %w", tgt, common.CodeOf(err), err)
			}
			fmt.Println(common.FormatAPDU(resp))
			return nil
		},
	}
)

func init() {
	key := "script"
	submitCmd.Flags().String(key, "", util.WrapString("File with one hex APDU per line, relayed after the APDUs given as arguments"))
}

// collectAPDUs parses the APDUs given as arguments followed by those in the script file
func collectAPDUs(args []string, script string) ([][]byte, error) {
	lines := append([]string{}, args...)

	if script != "" {
		f, err := os.Open(script)
		if err != nil {
			return nil, fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
	}

	apdus := make([][]byte, 0, len(lines))
	for _, line := range lines {
		apdu, err := common.ParseAPDU(line)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", line, err)
		}
		apdus = append(apdus, apdu)
	}
	return apdus, nil
}

// describeStatus names the status words the relay itself produces
func describeStatus(resp []byte) string {
	sw, ok := common.TrailingStatusWord(resp)
	if !ok {
		return ""
	}
	switch sw {
	case common.SWSuccess:
		return "  (success)"
	case common.SWUnknown:
		return "  (no precise diagnosis)"
	case common.SWConditionsNotSatisfied:
		return "  (conditions not satisfied)"
	default:
		return ""
	}
}
