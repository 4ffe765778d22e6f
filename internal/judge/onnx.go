package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"
)

// A local model bundle directory contains:
//
//	model.onnx       input "features" [1,dim] float32, output "logits" [1,len(labels)]
//	label_map.json   ["none","low","medium","high"] (any order)
//	features.yaml    dim: 4096
const (
	onnxModelFile    = "model.onnx"
	onnxLabelsFile   = "label_map.json"
	onnxFeaturesFile = "features.yaml"
	defaultFeatDim   = 4096
)

type featureConfig struct {
	Dim int `yaml:"dim"`
}

// onnxJudge runs a small text classifier locally. It only supports text.
type onnxJudge struct {
	session *ort.AdvancedSession
	labels  []ThreatLevel
	dim     int

	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]

	mu sync.Mutex
}

// NewONNX loads a local threat classifier from bundleDir.
func NewONNX(bundleDir string) (Judge, error) {
	if strings.TrimSpace(bundleDir) == "" {
		return nil, errors.New("onnx judge: bundle dir is empty")
	}

	modelPath := filepath.Join(bundleDir, onnxModelFile)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("onnx judge: model file missing at %s: %w", modelPath, err)
	}
	labels, err := loadThreatLabels(filepath.Join(bundleDir, onnxLabelsFile))
	if err != nil {
		return nil, fmt.Errorf("onnx judge: load labels: %w", err)
	}
	dim, err := loadFeatureDim(filepath.Join(bundleDir, onnxFeaturesFile))
	if err != nil {
		return nil, fmt.Errorf("onnx judge: load features: %w", err)
	}

	libPath := resolveSharedLibraryPath(bundleDir)
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dim)))
	if err != nil {
		return nil, fmt.Errorf("allocate features tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate logits tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"features"},
		[]string{"logits"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &onnxJudge{
		session: session,
		labels:  labels,
		dim:     dim,
		input:   input,
		output:  output,
	}, nil
}

func (j *onnxJudge) Name() string { return "onnx" }

func (j *onnxJudge) Judge(ctx context.Context, req Request) (*Judgment, error) {
	if req.Task != TaskText {
		return nil, fmt.Errorf("%w: onnx judge handles text only, got %q", ErrUnsupportedTask, req.Task)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	features := FeatureVector(req.Content, j.dim)

	j.mu.Lock()
	defer j.mu.Unlock()

	copy(j.input.GetData(), features)
	if err := j.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	logits := make([]float32, len(j.output.GetData()))
	copy(logits, j.output.GetData())

	return JudgmentFromLogits(j.labels, logits)
}

// FeatureVector hashes lower-cased word unigrams and bigrams into a dim-sized
// L2-normalized vector.
func FeatureVector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = defaultFeatDim
	}
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	add := func(tok string) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32()%uint32(dim))]++
	}
	for i, w := range words {
		add(w)
		if i > 0 {
			add(words[i-1] + " " + w)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// JudgmentFromLogits picks the arg-max label and reports its softmax
// probability as confidence.
func JudgmentFromLogits(labels []ThreatLevel, logits []float32) (*Judgment, error) {
	if len(logits) == 0 || len(logits) < len(labels) {
		return nil, fmt.Errorf("%w: got %d logits for %d labels", ErrInvalidJudgment, len(logits), len(labels))
	}
	maxLogit := math.Inf(-1)
	best := 0
	for i := range labels {
		if v := float64(logits[i]); v > maxLogit {
			maxLogit = v
			best = i
		}
	}
	var sum float64
	for i := range labels {
		sum += math.Exp(float64(logits[i]) - maxLogit)
	}
	prob := 1 / sum

	level := labels[best]
	var indicators []string
	if level != ThreatNone {
		indicators = []string{"model_threat_" + string(level)}
	}
	return &Judgment{
		ThreatLevel: level,
		Confidence:  prob,
		Indicators:  indicators,
		Reasoning:   fmt.Sprintf("local classifier rated threat %s (p=%.2f)", level, prob),
	}, nil
}

func loadThreatLabels(path string) ([]ThreatLevel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("label map is empty")
	}
	out := make([]ThreatLevel, 0, len(raw))
	for _, l := range raw {
		lvl := ThreatLevel(strings.ToLower(strings.TrimSpace(l)))
		switch lvl {
		case ThreatNone, ThreatLow, ThreatMedium, ThreatHigh:
		default:
			return nil, fmt.Errorf("unknown label %q", l)
		}
		out = append(out, lvl)
	}
	return out, nil
}

func loadFeatureDim(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultFeatDim, nil
		}
		return 0, err
	}
	var fc featureConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return 0, err
	}
	if fc.Dim <= 0 {
		return defaultFeatDim, nil
	}
	return fc.Dim, nil
}

// resolveSharedLibraryPath locates the onnxruntime shared library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise common names/locations are probed.
func resolveSharedLibraryPath(bundleDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		bundleDir,
		filepath.Join(bundleDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
