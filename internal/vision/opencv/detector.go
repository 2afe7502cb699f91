package opencv

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"checkpoint-gate/internal/domain/gate"
	"checkpoint-gate/internal/vision"
)

type YOLOConfig struct {
	ModelPath     string
	InputSize     int
	ConfThreshold float32
	NMSThreshold  float32
}

// YOLODetector runs a single-class YOLOv8 ONNX export through the OpenCV
// DNN module. The output tensor is [1, 4+classes, anchors].
type YOLODetector struct {
	net gocv.Net
	cfg YOLOConfig
}

func NewYOLODetector(cfg YOLOConfig) (*YOLODetector, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}
	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("load detector model %s: empty network", cfg.ModelPath)
	}
	return &YOLODetector{net: net, cfg: cfg}, nil
}

func (d *YOLODetector) Detect(ctx context.Context, img image.Image) ([]gate.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer frame.Close()

	size := image.Pt(d.cfg.InputSize, d.cfg.InputSize)
	blob := gocv.BlobFromImage(frame, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	return d.postProcess(out, frame.Cols(), frame.Rows())
}

func (d *YOLODetector) postProcess(out gocv.Mat, cols, rows int) ([]gate.Detection, error) {
	dims := out.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, fmt.Errorf("unexpected detector output shape %v", dims)
	}
	channels, anchors := dims[1], dims[2]

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read detector output: %w", err)
	}

	scaleX := float32(cols) / float32(d.cfg.InputSize)
	scaleY := float32(rows) / float32(d.cfg.InputSize)

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []int
	)
	for i := 0; i < anchors; i++ {
		bestClass, bestScore := 0, float32(0)
		for c := 4; c < channels; c++ {
			if s := data[c*anchors+i]; s > bestScore {
				bestClass, bestScore = c-4, s
			}
		}
		if bestScore < d.cfg.ConfThreshold {
			continue
		}

		cx, cy := data[i], data[anchors+i]
		w, h := data[2*anchors+i], data[3*anchors+i]
		x1 := int((cx - w/2) * scaleX)
		y1 := int((cy - h/2) * scaleY)
		x2 := int((cx + w/2) * scaleX)
		y2 := int((cy + h/2) * scaleY)

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		scores = append(scores, bestScore)
		classes = append(classes, bestClass)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, d.cfg.ConfThreshold, d.cfg.NMSThreshold)
	detections := make([]gate.Detection, 0, len(keep))
	for _, idx := range keep {
		r := boxes[idx]
		detections = append(detections, gate.Detection{
			Box:        gate.Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y},
			Confidence: float64(scores[idx]),
			ClassID:    classes[idx],
		})
	}
	return detections, nil
}

func (d *YOLODetector) Close() error {
	return d.net.Close()
}

// ContourDetector finds plate-shaped rectangles from edges when no model
// is available.
type ContourDetector struct {
	MinArea, MaxArea float64
	MinAspect        float64
	MaxAspect        float64
}

func NewContourDetector() *ContourDetector {
	return &ContourDetector{MinArea: 1000, MaxArea: 50000, MinAspect: 2.0, MaxAspect: 6.0}
}

func (d *ContourDetector) Detect(ctx context.Context, img image.Image) ([]gate.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer frame.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, 30, 200)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(17, 3))
	defer kernel.Close()

	morphed := gocv.NewMat()
	defer morphed.Close()
	gocv.MorphologyEx(edges, &morphed, gocv.MorphClose, kernel)

	contours := gocv.FindContours(morphed, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var detections []gate.Detection
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < d.MinArea || area > d.MaxArea {
			continue
		}
		rect := gocv.BoundingRect(contour)
		if rect.Dy() == 0 {
			continue
		}
		aspect := float64(rect.Dx()) / float64(rect.Dy())
		if aspect < d.MinAspect || aspect > d.MaxAspect {
			continue
		}
		detections = append(detections, gate.Detection{
			Box:        gate.Box{X1: rect.Min.X, Y1: rect.Min.Y, X2: rect.Max.X, Y2: rect.Max.Y},
			Confidence: area / d.MaxArea,
		})
	}
	return detections, nil
}

var _ vision.Detector = (*YOLODetector)(nil)
var _ vision.Detector = (*ContourDetector)(nil)
