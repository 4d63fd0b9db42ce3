package models

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a style to its full list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Style ModelFamily
	// Classes in index order.
	Classes []OutputClass
}

// NewClassSet builds a set from names in index order.
func NewClassSet(style ModelFamily, names []string) *OutputClassSet {
	classes := make([]OutputClass, len(names))
	for i, name := range names {
		classes[i] = OutputClass{Index: i, Name: name}
	}
	return &OutputClassSet{Style: style, Classes: classes}
}

// Len returns the number of classes in the set.
func (s *OutputClassSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Classes)
}

// Name returns the label for a class index.
//
// Indices the set does not cover are rendered as "class N" so a detection is
// never drawn without a label.
func (s *OutputClassSet) Name(idx int) string {
	if s == nil || idx < 0 || idx >= len(s.Classes) {
		return fmt.Sprintf("class %d", idx)
	}
	return s.Classes[idx].Name
}

// Index returns the class index for a label, or -1 when the label is unknown.
func (s *OutputClassSet) Index(name string) int {
	if s == nil {
		return -1
	}
	for _, c := range s.Classes {
		if c.Name == name {
			return c.Index
		}
	}
	return -1
}

// LoadClassNames reads a names file with one label per line, as shipped with
// darknet models (coco.names) and TensorFlow label files.
//
// Blank lines and lines starting with '#' are skipped; the remaining lines are
// numbered from zero.
//
// Arguments:
//   - path: The path to the names file.
//
// Returns:
//   - *OutputClassSet: A custom set holding the labels.
//   - error: An error if the file cannot be read or holds no labels.
func LoadClassNames(path string) (*OutputClassSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open class names")
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read class names %s", path)
	}
	if len(names) == 0 {
		return nil, errors.Errorf("class names file %s is empty", path)
	}

	return NewClassSet(ModelFamilyCustom, names), nil
}

// COCOClasses is the full 80 COCO classes plus "__background__" at index 0.
var COCOClasses = OutputClassSet{
	Style: ModelFamilyCOCO,
	Classes: []OutputClass{
		{0, "__background__"},
		{1, "person"},
		{2, "bicycle"},
		{3, "car"},
		{4, "motorcycle"},
		{5, "airplane"},
		{6, "bus"},
		{7, "train"},
		{8, "truck"},
		{9, "boat"},
		{10, "traffic light"},
		{11, "fire hydrant"},
		{12, "stop sign"},
		{13, "parking meter"},
		{14, "bench"},
		{15, "bird"},
		{16, "cat"},
		{17, "dog"},
		{18, "horse"},
		{19, "sheep"},
		{20, "cow"},
		{21, "elephant"},
		{22, "bear"},
		{23, "zebra"},
		{24, "giraffe"},
		{25, "backpack"},
		{26, "umbrella"},
		{27, "handbag"},
		{28, "tie"},
		{29, "suitcase"},
		{30, "frisbee"},
		{31, "skis"},
		{32, "snowboard"},
		{33, "sports ball"},
		{34, "kite"},
		{35, "baseball bat"},
		{36, "baseball glove"},
		{37, "skateboard"},
		{38, "surfboard"},
		{39, "tennis racket"},
		{40, "bottle"},
		{41, "wine glass"},
		{42, "cup"},
		{43, "fork"},
		{44, "knife"},
		{45, "spoon"},
		{46, "bowl"},
		{47, "banana"},
		{48, "apple"},
		{49, "sandwich"},
		{50, "orange"},
		{51, "broccoli"},
		{52, "carrot"},
		{53, "hot dog"},
		{54, "pizza"},
		{55, "donut"},
		{56, "cake"},
		{57, "chair"},
		{58, "couch"},
		{59, "potted plant"},
		{60, "bed"},
		{61, "dining table"},
		{62, "toilet"},
		{63, "tv"},
		{64, "laptop"},
		{65, "mouse"},
		{66, "remote"},
		{67, "keyboard"},
		{68, "cell phone"},
		{69, "microwave"},
		{70, "oven"},
		{71, "toaster"},
		{72, "sink"},
		{73, "refrigerator"},
		{74, "book"},
		{75, "clock"},
		{76, "vase"},
		{77, "scissors"},
		{78, "teddy bear"},
		{79, "hair drier"},
		{80, "toothbrush"},
	},
}

// YOLOClasses is the 80 COCO classes (no background).
// YOLO models index directly into this zero-based list.
var YOLOClasses = OutputClassSet{
	Style: ModelFamilyYOLO,
	Classes: func() []OutputClass {
		classes := make([]OutputClass, len(COCOClasses.Classes)-1) // drop background
		for i := 1; i < len(COCOClasses.Classes); i++ {
			classes[i-1] = OutputClass{i - 1, COCOClasses.Classes[i].Name}
		}
		return classes
	}(),
}

// PascalVOCClasses is the 20 Pascal VOC classes + "__background__" at index 0.
var PascalVOCClasses = OutputClassSet{
	Style: ModelFamilyVOC,
	Classes: []OutputClass{
		{0, "__background__"},
		{1, "aeroplane"},
		{2, "bicycle"},
		{3, "bird"},
		{4, "boat"},
		{5, "bottle"},
		{6, "bus"},
		{7, "car"},
		{8, "cat"},
		{9, "chair"},
		{10, "cow"},
		{11, "diningtable"},
		{12, "dog"},
		{13, "horse"},
		{14, "motorbike"},
		{15, "person"},
		{16, "pottedplant"},
		{17, "sheep"},
		{18, "sofa"},
		{19, "train"},
		{20, "tvmonitor"},
	},
}

// AllClassSets collects every built-in OutputClassSet in one place.
var AllClassSets = []*OutputClassSet{
	&COCOClasses,
	&YOLOClasses,
	&PascalVOCClasses,
}

// LookupSet returns the built-in set for a style.
func LookupSet(style ModelFamily) (*OutputClassSet, bool) {
	for _, set := range AllClassSets {
		if set.Style == style {
			return set, true
		}
	}
	return nil, false
}

// ResolveClassSet returns the labels to draw for a model.
//
// The value is either the name of a built-in style (coco, yolo, voc) or the
// path to a names file. An empty value selects the YOLO set.
func ResolveClassSet(value string) (*OutputClassSet, error) {
	if value == "" {
		return &YOLOClasses, nil
	}
	if set, ok := LookupSet(ModelFamily(strings.ToLower(value))); ok {
		return set, nil
	}
	return LoadClassNames(value)
}
