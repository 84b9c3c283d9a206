// Command scanctl is a CLI client for a running scand instance: it can
// trigger a scan, clear DTCs, and print the current snapshot or adapter
// status, talking to scand's REST API over HTTP.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var serverAddr string

func main() {
	root := &cobra.Command{
		Use:   "scanctl",
		Short: "Control a running scand scanner daemon",
	}
	root.PersistentFlags().StringVar(&serverAddr, "addr", "http://127.0.0.1:8734", "scand server address")

	root.AddCommand(snapshotCmd(), adapterCmd(), scanCmd(), clearCmd(), logsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func getJSON(path string, out interface{}) error {
	resp, err := httpClient().Get(serverAddr + path)
	if err != nil {
		return fmt.Errorf("scanctl: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("scanctl: failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("scanctl: server returned %s: %s", resp.Status, body)
	}
	return json.Unmarshal(body, out)
}

func postJSON(path string, in interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("scanctl: failed to encode request: %w", err)
	}
	resp, err := httpClient().Post(serverAddr+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("scanctl: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("scanctl: failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("scanctl: server returned %s: %s", resp.Status, body)
	}
	return nil
}

func printJSON(v interface{}) {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(pretty))
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the current application snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			var snapshot map[string]interface{}
			if err := getJSON("/api/snapshot", &snapshot); err != nil {
				return err
			}
			printJSON(snapshot)
			return nil
		},
	}
}

func adapterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adapter-status",
		Short: "Check whether a native J2534 driver is available",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status map[string]interface{}
			if err := getJSON("/api/adapter-status", &status); err != nil {
				return err
			}
			printJSON(status)
			return nil
		},
	}
}

func scanCmd() *cobra.Command {
	var mode, simulationPath string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Start a scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"mode": mode}
			if simulationPath != "" {
				req["simulationPath"] = simulationPath
			}
			if err := postJSON("/api/scan", req); err != nil {
				return err
			}
			fmt.Println("scan started")
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "simulation", "transport mode: simulation, j2534, or socketcan")
	cmd.Flags().StringVar(&simulationPath, "simulation-path", "", "path to a simulation fixture (simulation mode only)")
	return cmd
}

func clearCmd() *cobra.Command {
	var moduleID string
	cmd := &cobra.Command{
		Use:   "clear-dtcs",
		Short: "Clear DTCs for one module, or every module if --module is omitted",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"moduleId": moduleID}
			if err := postJSON("/api/clear-dtcs", req); err != nil {
				return err
			}
			fmt.Println("dtcs cleared")
			return nil
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id, e.g. 0x7E0")
	return cmd
}

func logsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the tail of the active session log",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body struct {
				Tail string `json:"tail"`
			}
			if err := getJSON("/api/logs/tail", &body); err != nil {
				return err
			}
			fmt.Print(body.Tail)
			return nil
		},
	}
	return cmd
}
