package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/browcrop/pkg/detection"
	"github.com/menta2k/browcrop/pkg/processing"
)

const probePrompt = "Describe this image in one sentence. Is there a human face in it?"

var probeCmd = &cobra.Command{
	Use:   "probe <image>",
	Short: "Check that the configured vision model can see images",
	Long: `probe sends one image to the ollama or llamacpp backend with a plain
question and prints the answer, then asks for the eye and eyebrow landmarks
and prints what came back.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	llm := cfg.Detector.Ollama
	if cfg.Detector.Backend == detection.BackendLlamaCpp {
		llm = cfg.Detector.LlamaCpp
	}
	client, err := detection.NewVisionClient(cfg.Detector.Backend, llm.URL)
	if err != nil {
		return err
	}

	proc := processing.NewProcessor()
	img, err := proc.LoadImage(args[0])
	if err != nil {
		return err
	}
	imgB64, err := proc.PrepareImageForModel(img, "jpg", 1024, 90)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	answer, err := client.SimpleQuery(cmd.Context(), llm.Model, probePrompt, imgB64)
	if err != nil {
		return fmt.Errorf("model %s did not answer: %w", llm.Model, err)
	}
	fmt.Fprintf(out, "%s: %s\n", llm.Model, answer)

	reply, err := client.LocateLandmarks(cmd.Context(), llm.Model, detection.LandmarkPrompt, imgB64)
	if err != nil {
		fmt.Fprintf(out, "landmarks: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "face=%v confidence=%.2f eye points=%d/%d brow points=%d/%d\n",
		reply.Face, reply.Confidence,
		len(reply.LeftEyeTop), len(reply.RightEyeTop),
		len(reply.LeftEyebrow), len(reply.RightEyebrow))
	return nil
}
