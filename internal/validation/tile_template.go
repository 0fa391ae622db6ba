package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("tile_template", validateTileTemplate)
}

// Placeholders every tile URL template must carry.
var placeholders = []string{"{z}", "{x}", "{y}"}

// ValidateTileTemplate checks a tile provider URL template such as
// http://c.tile.openstreetmap.org/{z}/{x}/{y}.png.
func ValidateTileTemplate(template string) error {
	if err := validate.Var(template, "required,tile_template"); err != nil {
		return fmt.Errorf("invalid tile URL template %q: %w", template, err)
	}
	return nil
}

// Struct validates s against its `validate` tags.
func Struct(s interface{}) error {
	return validate.Struct(s)
}

func validateTileTemplate(fl validator.FieldLevel) bool {
	template := fl.Field().String()

	for _, p := range placeholders {
		if strings.Count(template, p) != 1 {
			return false
		}
	}

	sample := strings.NewReplacer("{z}", "0", "{x}", "0", "{y}", "0").Replace(template)
	u, err := url.Parse(sample)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host != ""
}
