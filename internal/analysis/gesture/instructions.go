package gesture

import (
	"golang.org/x/text/language"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

// 支持的提示语言，第一个为兜底语言。
var supported = []language.Tag{
	language.English,
	language.Spanish,
	language.Portuguese,
	language.Chinese,
}

var matcher = language.NewMatcher(supported)

var phrases = map[language.Tag]map[liveness.Gesture]string{
	language.English: {
		liveness.GestureNone:      "Look straight at the camera",
		liveness.GestureBlink:     "Blink your eyes",
		liveness.GestureTurnLeft:  "Turn your head to the left",
		liveness.GestureTurnRight: "Turn your head to the right",
		liveness.GestureNod:       "Nod your head",
		liveness.GestureSmile:     "Smile",
		liveness.GestureOpenMouth: "Open your mouth",
	},
	language.Spanish: {
		liveness.GestureNone:      "Mira directamente a la cámara",
		liveness.GestureBlink:     "Parpadea",
		liveness.GestureTurnLeft:  "Gira la cabeza a la izquierda",
		liveness.GestureTurnRight: "Gira la cabeza a la derecha",
		liveness.GestureNod:       "Asiente con la cabeza",
		liveness.GestureSmile:     "Sonríe",
		liveness.GestureOpenMouth: "Abre la boca",
	},
	language.Portuguese: {
		liveness.GestureNone:      "Olhe diretamente para a câmera",
		liveness.GestureBlink:     "Pisque os olhos",
		liveness.GestureTurnLeft:  "Vire a cabeça para a esquerda",
		liveness.GestureTurnRight: "Vire a cabeça para a direita",
		liveness.GestureNod:       "Acene com a cabeça",
		liveness.GestureSmile:     "Sorria",
		liveness.GestureOpenMouth: "Abra a boca",
	},
	language.Chinese: {
		liveness.GestureNone:      "请正视摄像头",
		liveness.GestureBlink:     "请眨眼",
		liveness.GestureTurnLeft:  "请向左转头",
		liveness.GestureTurnRight: "请向右转头",
		liveness.GestureNod:       "请点头",
		liveness.GestureSmile:     "请微笑",
		liveness.GestureOpenMouth: "请张嘴",
	},
}

// Catalog 提供某一种语言下的动作提示语。
type Catalog struct {
	tag language.Tag
}

// NewCatalog 根据 BCP 47 语言标签选择最接近的提示语言，无法识别时使用英文。
func NewCatalog(lang string) *Catalog {
	tag, err := language.Parse(lang)
	if err != nil {
		return &Catalog{tag: language.English}
	}
	_, idx, _ := matcher.Match(tag)
	return &Catalog{tag: supported[idx]}
}

// Language 返回实际使用的语言标签。
func (c *Catalog) Language() string {
	return c.tag.String()
}

// Instruction 返回单个动作的提示语。
func (c *Catalog) Instruction(g liveness.Gesture) string {
	if text, ok := phrases[c.tag][g]; ok {
		return text
	}
	if text, ok := phrases[language.English][g]; ok {
		return text
	}
	return string(g)
}

// Instructions 按顺序返回整组动作的提示语。
func (c *Catalog) Instructions(gestures []liveness.Gesture) []string {
	out := make([]string, len(gestures))
	for i, g := range gestures {
		out[i] = c.Instruction(g)
	}
	return out
}
