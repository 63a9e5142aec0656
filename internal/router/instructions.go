package router

import (
	"fmt"
	"strings"

	"dealer-studio-backend/internal/models"
)

// OutputAspectRatio is requested from the generator for every strategy.
const OutputAspectRatio = "4:3"

type InstructionParams struct {
	Category models.Category
	TaskType models.TaskType
	// Branding is true when a logo image is attached after the plate.
	Branding bool
}

// Instruction renders the text block sent with the images. Image 1 is always
// the source photo and Image 2 the studio plate; the logo, when present, is
// Image 3.
func (s Strategy) Instruction(p InstructionParams) string {
	var rules []string
	var header, goal string

	switch s.Kind {
	case KindInterior:
		header = "ROLE: Image execution engine (master retoucher)\n" +
			"TASK: Interior enhancement and relighting\n" +
			"INPUTS: Image 1 is the vehicle cabin. Image 2 is the studio environment to show through the windows."
		rules = []string{
			"GEOMETRY LOCK: keep the camera angle, framing, dashboard geometry and steering wheel perspective exactly as in Image 1. Any structural change is a failure.",
			"LIGHTING: remove direct sunlight patches, sunbeams and hard directional shadows. Use soft, diffuse 6500K neutral studio light.",
			"REFLECTIONS: erase outdoor reflections from screens, clusters, gloss trim and mirrors. Replace them with clean studio gradients or solid black.",
			"WINDOWS: replace the scenery visible through the windows with Image 2.",
			"NO COMPLETION: do not invent unseen parts. Anything cut off by the frame stays cut off.",
			"PRESERVE: every button, stitch, trim pattern and sign of wear stays identical to Image 1.",
		}
		goal = "GOAL: the same cabin, cleanly studio lit."
	case KindDetail:
		header = "ROLE: Image execution engine (master compositor)\n" +
			"TASK: Detail shot background replacement\n" +
			"INPUTS: Image 1 is a vehicle component close-up. Image 2 is the studio background."
		rules = []string{
			"GEOMETRY LOCK: keep the component's geometry, viewing angle and perspective exactly as in Image 1. It must not rotate or shift.",
			"PRESERVE: keep every texture, scratch, wear mark and imperfection of the component.",
			"BACKGROUND: replace the background with Image 2. The studio backdrop does not need to match the original camera height.",
			"LIGHTING: remove harsh outdoor shadows and sunlight. Use soft, diffuse studio light.",
		}
		goal = "GOAL: the untouched component placed in a premium studio setting."
	default:
		header = "ROLE: Image execution engine (professional studio retoucher)\n" +
			"TASK: Photo retouching and background replacement, tripod locked\n" +
			"INPUTS: Image 1 is the vehicle photo (base layer). Image 2 is the studio plate (background layer)."
		rules = []string{
			"TRIPOD LOCK: the camera must not move. The vehicle's geometry, angle and perspective stay identical to Image 1.",
			"MASK AND COMPOSE: cut the vehicle out of Image 1 and place it into Image 2.",
			"LIGHTING: match the vehicle's lighting to the soft white studio lights of Image 2.",
			"REFLECTIONS: remove trees and buildings from the paint and glass reflections. Replace them with the studio walls.",
			"SHADOW: cast a realistic contact shadow on the floor of Image 2.",
			"PRESERVE: keep damage, wear, wheels and badges exactly as photographed.",
		}
		if hint := viewpointHint(p.Category); hint != "" {
			rules = append(rules, hint)
		}
		if p.TaskType == models.TaskPlateRedaction {
			rules = append(rules, "LICENSE PLATE: replace every visible license plate with a clean blank plate of the same shape and perspective. No characters may remain readable.")
		}
		goal = "VERIFICATION: if the vehicle angle changes, if it looks illustrated, or if the background is not Image 2, the result is a failure."
	}

	rules = append(rules, fmt.Sprintf("OUTPUT: a photographic result with a %s aspect ratio.", OutputAspectRatio))
	if p.Branding {
		rules = append(rules, brandingRule(s.Kind))
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\nSTRICT RULES:\n")
	for i, rule := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}
	b.WriteString("\n")
	b.WriteString(goal)
	return b.String()
}

func viewpointHint(category models.Category) string {
	switch category {
	case models.CategoryDoorOpen:
		return "OPEN DOOR: the door stays open at the same angle. Keep the visible interior untouched."
	case models.CategoryTrunkOpen:
		return "OPEN TRUNK: the trunk lid stays open. Keep the cargo area untouched."
	case models.CategoryHoodOpen:
		return "OPEN HOOD: the hood stays open. Keep the engine bay untouched."
	default:
		return ""
	}
}

func brandingRule(kind Kind) string {
	if kind == KindInterior {
		return "BRANDING: Image 3 is the dealership logo. Place it small and unobtrusive in the top left corner of the frame."
	}
	return "BRANDING: Image 3 is the dealership logo. Place it on the top left, as if mounted on the studio wall."
}
