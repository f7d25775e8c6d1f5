package inspection

import (
	"inspection-service/internal/utils"
)

// Component is one of the vehicle parts the detection model is trained on.
type Component string

const (
	ComponentBonnet     Component = "bonnet"
	ComponentBumper     Component = "bumper"
	ComponentDickey     Component = "dickey"
	ComponentDoor       Component = "door"
	ComponentFender     Component = "fender"
	ComponentLight      Component = "light"
	ComponentWindshield Component = "windshield"
)

// KnownComponents lists the checklist components in report order.
var KnownComponents = []Component{
	ComponentBonnet,
	ComponentBumper,
	ComponentDickey,
	ComponentDoor,
	ComponentFender,
	ComponentLight,
	ComponentWindshield,
}

var componentDisplay = map[Component]string{
	ComponentBonnet:     "Bonnet",
	ComponentBumper:     "Bumper",
	ComponentDickey:     "Dickey",
	ComponentDoor:       "Door",
	ComponentFender:     "Fender",
	ComponentLight:      "Light",
	ComponentWindshield: "Windshield",
}

func (c Component) Display() string {
	if name, ok := componentDisplay[c]; ok {
		return name
	}
	return utils.Capitalize(string(c))
}

// Label is the result of classifying a raw model class: either a known
// Component or a fallback carrying the normalized class string.
type Label struct {
	key   string
	known bool
}

// ParseLabel never fails; unknown classes become fallback labels.
func ParseLabel(class string) Label {
	key := utils.NormalizeClass(class)
	_, known := componentDisplay[Component(key)]
	return Label{key: key, known: known}
}

// Key is the normalized class used for deduplication.
func (l Label) Key() string {
	return l.key
}

func (l Label) Known() bool {
	return l.known
}

// Component returns the known component, ok is false for fallback labels.
func (l Label) Component() (Component, bool) {
	if !l.known {
		return "", false
	}
	return Component(l.key), true
}

func (l Label) Display() string {
	return Component(l.key).Display()
}
