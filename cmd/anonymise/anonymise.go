package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/anonymiser/pkg/anonymise"
	"github.com/cyclopcam/anonymiser/pkg/detector"
	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/cyclopcam/anonymiser/pkg/session"
	"github.com/cyclopcam/anonymiser/pkg/visualize"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

// Parses "x1,y1,x2,y2,label"
func parseBox(s string) (nn.Box, string, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 5 {
		return nn.Box{}, "", fmt.Errorf("box must be x1,y1,x2,y2,label, but got '%v'", s)
	}
	box := nn.Box{}
	for i := 0; i < 4; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return nn.Box{}, "", fmt.Errorf("box coordinate '%v' is not an integer", parts[i])
		}
		box[i] = v
	}
	return box, strings.TrimSpace(parts[4]), nil
}

func main() {
	parser := argparse.NewParser("anonymise", "Blur or paint over objects in an image")
	input := parser.String("i", "input", &argparse.Options{Help: "Input image", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Output JPEG", Default: "anonymised.jpg"})
	predFile := parser.String("p", "predictions", &argparse.Options{Help: "Prediction record JSON file"})
	detectorURL := parser.String("", "detector", &argparse.Options{Help: "Base URL of a detection provider, used when no prediction file is given"})
	modelIndex := parser.Int("m", "model", &argparse.Options{Help: "Index of the provider's detector", Default: 0})
	classes := parser.StringList("c", "class", &argparse.Options{Help: "Class to anonymise. May be repeated.", Required: true})
	instances := parser.StringList("", "instance", &argparse.Options{Help: "Instance of the matching --class, or 'all'. May be repeated."})
	targetType := parser.String("t", "type", &argparse.Options{Help: "Target type (box or mask)", Default: string(nn.TargetBox)})
	mode := parser.String("", "mode", &argparse.Options{Help: "Anonymisation mode (blur or color)", Default: string(anonymise.ModeBlur)})
	intensity := parser.Float("", "intensity", &argparse.Options{Help: "Blur intensity, between 0 and 1", Default: 0.1})
	color := parser.String("", "color", &argparse.Options{Help: "Fill color for 'color' mode", Default: anonymise.DefaultColor.Hex()})
	boxes := parser.StringList("b", "box", &argparse.Options{Help: "Add a user box x1,y1,x2,y2,label. May be repeated."})
	ignoreUserBoxes := parser.Flag("", "ignore-user-boxes", &argparse.Options{Help: "Don't anonymise user boxes", Default: false})
	compound := parser.Flag("", "compound", &argparse.Options{Help: "Apply each selection on top of the previous one. Without this, only the last selection has an effect.", Default: false})
	preview := parser.String("", "preview", &argparse.Options{Help: "Also write the detections, drawn over the input, to this JPEG"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}
	if len(*instances) != 0 && len(*instances) != len(*classes) {
		fmt.Printf("--instance must be given once for every --class\n")
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)
	defer logger.Close()

	var registry *detector.Registry
	if *predFile != "" {
		static, err := detector.LoadStatic(*predFile)
		check(err)
		registry = detector.NewRegistry(logger)
		registry.Add("file", *predFile, static)
		*modelIndex = 0
	} else if *detectorURL != "" {
		registry, err = detector.NewRemoteRegistry(context.Background(), logger, detector.NewRemote(logger, *detectorURL, nil))
		check(err)
	} else {
		fmt.Printf("Either --predictions or --detector must be given\n")
		os.Exit(1)
	}
	defer registry.Close()

	img, err := imageio.ReadFile(*input)
	check(err)

	sessions := session.NewManager(logger, registry, session.ManagerConfig{})
	sess := sessions.Create()
	sess.Upload(img)
	_, _, err = sess.SelectDetector(context.Background(), *modelIndex, nil)
	check(err)

	for _, b := range *boxes {
		box, label, err := parseBox(b)
		check(err)
		_, err = sess.AddLabeledBox(box, label)
		check(err)
	}

	if *preview != "" {
		pred, err := sess.Prediction()
		check(err)
		check(imageio.WriteJPEG(*preview, visualize.DrawBoxes(img, pred, true), imageio.DefaultJPEGQuality))
	}

	params := anonymise.NewParams()
	params.Mode = anonymise.Mode(*mode)
	params.BlurKernel = anonymise.DefaultIntensity().ConvertIntensity(*intensity)
	params.Color, err = anonymise.ConvertColorHexToRGB(*color)
	check(err)

	out := img
	for i, class := range *classes {
		instance := nn.AllInstances
		if len(*instances) != 0 {
			instance = (*instances)[i]
		}
		out, err = sess.Anonymise(session.Request{
			ClassName:       class,
			InstanceID:      instance,
			TargetType:      nn.TargetType(*targetType),
			IgnoreUserBoxes: *ignoreUserBoxes,
			Compound:        *compound,
			Params:          params,
		})
		check(err)
	}
	check(imageio.WriteJPEG(*output, out, imageio.DefaultJPEGQuality))
	logger.Infof("Wrote %v", *output)
}
