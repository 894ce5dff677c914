package vision

import (
	"fmt"
	"image"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one observed bounding box in one frame.
type Detection struct {
	BBox    BBox
	Score   float64
	ClassID int
}

// Detector turns a frame into a set of scored boxes.
type Detector interface {
	Detect(img image.Image) ([]Detection, error)
}

// COCO class ids used by the pipeline.
const (
	ClassPerson     = 0
	ClassSportsBall = 32
)

var cocoNames = map[string]int{
	"person":      ClassPerson,
	"sports ball": ClassSportsBall,
	"ball":        ClassSportsBall,
}

// ClassID resolves a COCO class name. ok is false for unknown names.
func ClassID(name string) (id int, ok bool) {
	id, ok = cocoNames[name]
	return id, ok
}

// yolov8 export: input "images" [1,3,640,640], output "output0" [1,84,8400]
// laid out as 4 box rows (cx, cy, w, h) followed by 80 class-score rows.
const (
	yoloInputSize  = 640
	yoloAnchors    = 8400
	yoloNumClasses = 80
	yoloNMSIoU     = 0.45
)

// YOLODetector runs a YOLOv8 ONNX model with ONNX Runtime.
type YOLODetector struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	confidence   float32
	targetClass  int // -1 keeps every class
}

// NewYOLODetector loads the model. targetClass < 0 disables class filtering.
// opts may be nil (ORT defaults).
func NewYOLODetector(modelPath string, confidence float32, targetClass int, opts *ort.SessionOptions) (*YOLODetector, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, yoloInputSize, yoloInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 4+yoloNumClasses, yoloAnchors))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &YOLODetector{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		confidence:   confidence,
		targetClass:  targetClass,
	}, nil
}

// Detect runs the model on img and returns boxes in img pixel coordinates.
func (d *YOLODetector) Detect(img image.Image) ([]Detection, error) {
	bounds := img.Bounds()
	input := imageToCHW(img, yoloInputSize, yoloInputSize)

	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.inputTensor.GetData(), input)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	dets := decodeYOLO(d.outputTensor.GetData(), bounds.Dx(), bounds.Dy(), d.confidence, d.targetClass)
	return nms(dets, yoloNMSIoU), nil
}

// decodeYOLO converts the raw [84, anchors] output into detections scaled to
// the original frame size.
func decodeYOLO(out []float32, origW, origH int, confidence float32, targetClass int) []Detection {
	n := len(out) / (4 + yoloNumClasses)
	scaleW := float64(origW) / yoloInputSize
	scaleH := float64(origH) / yoloInputSize

	var dets []Detection
	for a := 0; a < n; a++ {
		bestClass, bestScore := -1, float32(0)
		for k := 0; k < yoloNumClasses; k++ {
			if s := out[(4+k)*n+a]; s > bestScore {
				bestClass, bestScore = k, s
			}
		}
		if bestScore < confidence {
			continue
		}
		if targetClass >= 0 && bestClass != targetClass {
			continue
		}

		cx, cy := float64(out[a]), float64(out[n+a])
		w, h := float64(out[2*n+a]), float64(out[3*n+a])
		box := BBox{
			clamp((cx-w/2)*scaleW, 0, float64(origW)),
			clamp((cy-h/2)*scaleH, 0, float64(origH)),
			clamp((cx+w/2)*scaleW, 0, float64(origW)),
			clamp((cy+h/2)*scaleH, 0, float64(origH)),
		}
		if box.Area() == 0 {
			continue
		}
		dets = append(dets, Detection{BBox: box, Score: float64(bestScore), ClassID: bestClass})
	}
	return dets
}

func (d *YOLODetector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
	}
}

// nms performs class-aware Non-Maximum Suppression.
func nms(detections []Detection, iouThreshold float64) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(detections); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if !keep[j] || detections[j].ClassID != detections[i].ClassID {
				continue
			}
			if IoU(detections[i].BBox, detections[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Detection, 0, len(detections))
	for i, d := range detections {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
