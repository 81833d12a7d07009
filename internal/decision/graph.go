package decision

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/codekeep/codekeep/internal/model"
	"github.com/codekeep/codekeep/internal/store"
)

// EvolveInput overrides fields on the evolved child. Unset fields inherit
// from the parent.
type EvolveInput struct {
	Name        string
	Description string
	PatternType string
	Tags        []string
	TestsPassed *bool
}

// Evolve registers newCode as a child of the pattern parentID and links the
// evolution edge on both records. The child inherits the parent's metadata
// wherever the input leaves a field unset.
func (e *Engine) Evolve(ctx context.Context, parentID, newCode string, in EvolveInput) (*model.Pattern, error) {
	parent, err := e.st.Get(ctx, parentID)
	if err != nil {
		return nil, eris.Wrap(err, "decision: load evolution parent")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		// Distinct name keeps the child from colliding with the parent's
		// (name, language) dedup slot.
		name = parent.Name + "-evolved"
	}
	description := in.Description
	if description == "" {
		description = parent.Description
	}
	patternType := in.PatternType
	if patternType == "" {
		patternType = parent.PatternType
	}
	tags := in.Tags
	if tags == nil {
		tags = parent.Tags
	}

	child, err := e.st.Register(ctx, store.RegisterInput{
		Name:        name,
		Code:        newCode,
		Language:    parent.Language,
		PatternType: patternType,
		Description: description,
		Tags:        tags,
		TestsPassed: in.TestsPassed,
		ParentID:    parent.ID,
	})
	if err != nil {
		return nil, eris.Wrap(err, "decision: register evolved pattern")
	}

	if err := e.st.LinkEvolution(ctx, parent.ID, child.ID); err != nil {
		return nil, eris.Wrap(err, "decision: link evolution")
	}

	zap.L().Info("decision: evolved pattern",
		zap.String("parent_id", parent.ID),
		zap.String("child_id", child.ID),
		zap.String("name", child.Name),
	)
	return child, nil
}

// ComposeInput describes a composite pattern assembled from stored components.
type ComposeInput struct {
	Name        string
	Components  []string // pattern ids or names
	Code        string   // optional glue code; component bodies are concatenated when empty
	Description string
	Tags        []string
	Language    string
}

// Compose builds and registers a composite pattern from existing components.
// Components are resolved by id first, then by folded name. The composite
// records the component ids in both Requires and ComposedOf.
func (e *Engine) Compose(ctx context.Context, in ComposeInput) (*model.Pattern, error) {
	if len(in.Components) == 0 {
		return nil, eris.Wrap(model.ErrValidation, "decision: compose needs at least one component")
	}

	components := make([]*model.Pattern, 0, len(in.Components))
	for _, ref := range in.Components {
		p, err := e.resolveComponent(ctx, ref, in.Language)
		if err != nil {
			return nil, err
		}
		components = append(components, p)
	}

	language := in.Language
	if language == "" {
		language = components[0].Language
	}

	code := in.Code
	if code == "" {
		parts := make([]string, 0, len(components))
		for _, c := range components {
			parts = append(parts, c.Code)
		}
		code = strings.Join(parts, "\n\n")
	}

	ids := make([]string, 0, len(components))
	tagSet := map[string]string{}
	for _, t := range in.Tags {
		tagSet[model.Fold(t)] = t
	}
	for _, c := range components {
		ids = append(ids, c.ID)
		for _, t := range c.Tags {
			if _, ok := tagSet[model.Fold(t)]; !ok {
				tagSet[model.Fold(t)] = t
			}
		}
	}
	tags := make([]string, 0, len(tagSet))
	for _, t := range tagSet {
		tags = append(tags, t)
	}

	composite, err := e.st.Register(ctx, store.RegisterInput{
		Name:        in.Name,
		Code:        code,
		Language:    language,
		PatternType: "composition",
		Description: in.Description,
		Tags:        tags,
		Tier:        model.TierComposite,
		Requires:    ids,
		ComposedOf:  ids,
	})
	if err != nil {
		return nil, eris.Wrap(err, "decision: register composite")
	}

	zap.L().Info("decision: composed pattern",
		zap.String("id", composite.ID),
		zap.String("name", composite.Name),
		zap.Int("components", len(ids)),
	)
	return composite, nil
}

func (e *Engine) resolveComponent(ctx context.Context, ref, language string) (*model.Pattern, error) {
	p, err := e.st.Get(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !eris.Is(err, model.ErrNotFound) {
		return nil, eris.Wrapf(err, "decision: resolve component %q", ref)
	}

	if language != "" {
		if p, err := e.st.GetByName(ctx, ref, language); err == nil {
			return p, nil
		} else if !eris.Is(err, model.ErrNotFound) {
			return nil, eris.Wrapf(err, "decision: resolve component %q", ref)
		}
	}

	// Any-language name scan as the last resort.
	all, err := e.st.GetAll(ctx, store.Filters{})
	if err != nil {
		return nil, eris.Wrapf(err, "decision: resolve component %q", ref)
	}
	for i := range all {
		if model.Fold(all[i].Name) == model.Fold(ref) {
			return &all[i], nil
		}
	}
	return nil, eris.Wrapf(model.ErrNotFound, "decision: component %q", ref)
}

// ResolveDependencies walks a pattern's Requires graph and returns its full
// dependency closure in leaves-first order. Each pattern appears once and
// cycles terminate; the root itself is not included. Dangling ids are
// skipped with a warning.
func (e *Engine) ResolveDependencies(ctx context.Context, id string) ([]model.Pattern, error) {
	root, err := e.st.Get(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "decision: load dependency root")
	}

	visited := map[string]bool{root.ID: true}
	var order []model.Pattern

	var visit func(p *model.Pattern) error
	visit = func(p *model.Pattern) error {
		for _, depID := range p.Requires {
			if visited[depID] {
				continue
			}
			visited[depID] = true
			dep, err := e.st.Get(ctx, depID)
			if err != nil {
				if eris.Is(err, model.ErrNotFound) {
					zap.L().Warn("decision: dangling dependency",
						zap.String("pattern_id", p.ID),
						zap.String("requires", depID),
					)
					continue
				}
				return eris.Wrapf(err, "decision: load dependency %s", depID)
			}
			if err := visit(dep); err != nil {
				return err
			}
			order = append(order, *dep)
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}
