package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// client talks to a running gateway from the command line. Useful for smoke
// testing a deployment without curl incantations.
var clientURL string

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Talk to a running gateway",
}

var clientSubmitCmd = &cobra.Command{
	Use:   "submit <sequence>",
	Short: "Submit a single-protein prediction and print the job id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		model, _ := cmd.Flags().GetString("model")
		req := structapi.PredictionRequest{
			Name: name,
			Sequences: []structapi.ChainInput{
				{Type: structapi.ChainProtein, Sequence: strings.TrimSpace(args[0]), Count: 1},
			},
			ModelName: model,
		}
		var out structapi.SubmitResponse
		if err := gatewayPost("/api/v1/structure/predict", req, &out); err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", out.JobID, out.Message)
		return nil
	},
}

var clientStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Poll a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var out structapi.JobStatus
		if err := gatewayGet("/api/v1/structure/jobs/"+args[0], &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var clientDownloadCmd = &cobra.Command{
	Use:   "download <job-id> <file>",
	Short: "Download a completed job's structure file",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		resp, err := httpClient().Get(gatewayURL("/api/v1/structure/jobs/" + args[0] + "/structure"))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return gatewayError(resp)
		}
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := io.Copy(f, resp.Body)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes to %s\n", n, args[1])
		return nil
	},
}

var clientModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models across backends",
	RunE: func(_ *cobra.Command, _ []string) error {
		var out structapi.ModelsResponse
		if err := gatewayGet("/api/v1/structure/models", &out); err != nil {
			return err
		}
		for _, m := range out.Models {
			marker := " "
			if m.Loaded {
				marker = "*"
			}
			fmt.Printf("%s %-36s %8.1fM  %s\n", marker, m.Name, m.ParametersM, m.Description)
		}
		return nil
	},
}

var clientPreloadCmd = &cobra.Command{
	Use:   "preload <model>",
	Short: "Ask the owning backend to load a model eagerly",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var out structapi.PreloadResponse
		if err := gatewayPost("/api/v1/structure/preload", structapi.PreloadRequest{ModelName: args[0]}, &out); err != nil {
			return err
		}
		fmt.Println(out.Message)
		return nil
	},
}

var clientVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the gateway and its model listing answer",
	RunE: func(_ *cobra.Command, _ []string) error {
		resp, err := httpClient().Get(gatewayURL("/health"))
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("health check returned %s", resp.Status)
		}
		fmt.Printf("ok: %s\n", gatewayURL("/health"))

		var models structapi.ModelsResponse
		if err := gatewayGet("/api/v1/structure/models", &models); err != nil {
			return fmt.Errorf("model listing failed: %w", err)
		}
		fmt.Printf("ok: %d model(s) listed\n", len(models.Models))
		return nil
	},
}

func init() {
	clientCmd.PersistentFlags().StringVar(&clientURL, "url", "http://localhost:8080", "gateway URL")
	clientSubmitCmd.Flags().String("name", "prediction", "job name")
	clientSubmitCmd.Flags().String("model", "protenix_mini_esm_v0.5.0", "model name")
	clientCmd.AddCommand(clientSubmitCmd, clientStatusCmd, clientDownloadCmd,
		clientModelsCmd, clientPreloadCmd, clientVerifyCmd)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func gatewayURL(path string) string {
	return strings.TrimRight(clientURL, "/") + path
}

func gatewayGet(path string, out any) error {
	resp, err := httpClient().Get(gatewayURL(path))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gatewayError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func gatewayPost(path string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := httpClient().Post(gatewayURL(path), "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gatewayError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func gatewayError(resp *http.Response) error {
	var e structapi.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Detail != "" {
		return fmt.Errorf("%s: %s", resp.Status, e.Detail)
	}
	return fmt.Errorf("gateway returned %s", resp.Status)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
