package broadcast

import (
	"strings"
	"testing"

	"marketbot/internal/repo"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genInterests() gopter.Gen {
	return gen.SliceOf(gen.OneConstOf(
		"Business", "Fashion", "Food", "Tech", "Health", "Education",
	)).Map(func(picked []string) string {
		return strings.Join(picked, ",")
	})
}

func genCategory() gopter.Gen {
	return gen.OneConstOf("General", "Fashion", "Food", "Tech", "Fashion,Food", "General,Tech", "Health")
}

func genGender() gopter.Gen {
	return gen.OneConstOf("", "Male", "Female")
}

func genTargetGender() gopter.Gen {
	return gen.OneConstOf("All", "Male", "Female")
}

// Every account Matches admits satisfies all three filters; every account it
// rejects violates at least one.
func TestMatchesFilterLaws(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("a matched recipient satisfies every filter", prop.ForAll(
		func(category, target, gender, interests string) bool {
			promo := &repo.Promotion{Category: category, TargetGender: target}
			acc := &repo.Account{
				CurrentMode: repo.ModeSubscriber,
				Gender:      gender,
				Interests:   interests,
			}
			if !Matches(promo, acc) {
				return true
			}

			// Gender law: a set gender never contradicts a non-All target.
			if target != "All" && gender != "" && !strings.EqualFold(gender, target) {
				return false
			}
			// Category law: some category is General or intersects interests.
			lowered := strings.ToLower(interests)
			for _, cat := range strings.Split(category, ",") {
				cat = strings.ToLower(strings.TrimSpace(cat))
				if cat == "general" {
					return true
				}
				if lowered != "" && strings.Contains(lowered, cat) {
					return true
				}
			}
			return false
		},
		genCategory(), genTargetGender(), genGender(), genInterests(),
	))

	properties.Property("vendor mode is never matched", prop.ForAll(
		func(category, target, gender, interests string) bool {
			promo := &repo.Promotion{Category: category, TargetGender: target}
			acc := &repo.Account{
				CurrentMode: repo.ModeVendor,
				Gender:      gender,
				Interests:   interests,
			}
			return !Matches(promo, acc)
		},
		genCategory(), genTargetGender(), genGender(), genInterests(),
	))

	properties.Property("general category reaches every subscriber-mode account", prop.ForAll(
		func(target, gender, interests string) bool {
			promo := &repo.Promotion{Category: "General", TargetGender: target}
			acc := &repo.Account{
				CurrentMode: repo.ModeSubscriber,
				Gender:      gender,
				Interests:   interests,
			}
			genderBlocked := target != "All" && gender != "" && !strings.EqualFold(gender, target)
			return Matches(promo, acc) == !genderBlocked
		},
		genTargetGender(), genGender(), genInterests(),
	))

	properties.TestingRun(t)
}

// Widening the target audience never loses a recipient: anyone matched under
// a gender-targeted promotion is still matched when the same promotion
// targets All.
func TestWideningTargetIsMonotone(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("retargeting to All keeps every recipient", prop.ForAll(
		func(category, target, gender, interests string) bool {
			narrow := &repo.Promotion{Category: category, TargetGender: target}
			wide := &repo.Promotion{Category: category, TargetGender: "All"}
			acc := &repo.Account{
				CurrentMode: repo.ModeSubscriber,
				Gender:      gender,
				Interests:   interests,
			}
			if Matches(narrow, acc) {
				return Matches(wide, acc)
			}
			return true
		},
		genCategory(), genTargetGender(), genGender(), genInterests(),
	))

	properties.TestingRun(t)
}
