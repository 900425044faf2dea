package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Template writes a fixed-shape review. It never fails.
type Template struct{}

var _ ContentProvider = Template{}

func (Template) Name() string { return "template" }

func (Template) Resolve(_ context.Context, b Brief) (string, error) {
	name := b.Product
	if name == "" {
		name = "this product"
	}
	kw := lo.Map(b.Keywords, func(k string, _ int) string { return strings.ToLower(k) })
	has := func(words ...string) bool {
		return lo.SomeBy(words, func(w string) bool { return lo.Contains(kw, w) })
	}

	parts := []string{
		fmt.Sprintf("So I've been using the %s and honestly it surprised me.", name),
		fmt.Sprintf("Right out of the box the %s feels solid and well made.", name),
	}
	if len(b.Keywords) > 0 {
		parts = append(parts, fmt.Sprintf("The standouts for me are %s.", humanList(lo.Subset(b.Keywords, 0, 3))))
	}
	if has("features", "technology", "wireless", "bluetooth") {
		parts = append(parts, "It packs the kind of features you actually use every day.")
	}
	if has("performance", "productivity", "gaming", "speed") {
		parts = append(parts, "Performance is where it really shines, smooth and responsive under load.")
	}
	if has("design", "ergonomic", "comfort", "lifestyle") {
		parts = append(parts, "The design is comfortable and it looks great on any desk.")
	}
	if b.Data != nil && b.Data.Price != "" {
		parts = append(parts, fmt.Sprintf("For %s it's a pretty easy recommendation.", b.Data.Price))
	}
	parts = append(parts, fmt.Sprintf("If you've been on the fence, the %s is worth a look.", name))
	return strings.Join(parts, " "), nil
}

func humanList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
