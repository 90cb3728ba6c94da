package source

import (
	"context"

	"github.com/longbox-labs/entity-verify/internal/model"
	"github.com/longbox-labs/entity-verify/internal/namecanon"
	"github.com/longbox-labs/entity-verify/pkg/superhero"
)

// SuperheroConfidence reflects trust in the community-maintained Superhero
// API, the least authoritative of the configured providers.
const SuperheroConfidence = 0.80

// SuperheroAdapter normalizes Superhero API records.
type SuperheroAdapter struct {
	client superhero.Client
}

// NewSuperheroAdapter creates the Superhero API adapter.
func NewSuperheroAdapter(client superhero.Client) *SuperheroAdapter {
	return &SuperheroAdapter{client: client}
}

func (a *SuperheroAdapter) Name() string { return "superhero_api" }

func (a *SuperheroAdapter) Confidence() float64 { return SuperheroConfidence }

func (a *SuperheroAdapter) Fetch(ctx context.Context, name string) (*model.SourceRecord, error) {
	var hero *superhero.Hero
	for _, variant := range namecanon.Variants(name) {
		var err error
		hero, err = a.client.Search(ctx, variant)
		if err != nil {
			return nil, err
		}
		if hero != nil {
			break
		}
	}
	if hero == nil {
		return nil, nil
	}

	fields := make(map[string]any)
	putNonEmpty(fields, model.FieldRealName, hero.FullName)
	putNonEmpty(fields, model.FieldFirstAppearance, hero.FirstAppearance)
	putNonEmpty(fields, model.FieldPublisher, hero.Publisher)
	putNonEmpty(fields, model.FieldAllies, hero.GroupAffiliation)
	putNonEmpty(fields, model.FieldGender, hero.Gender)
	putNonEmpty(fields, model.FieldPowers, hero.PowerStats)
	putNonEmpty(fields, model.FieldImageURL, hero.ImageURL)
	putNonEmpty(fields, model.FieldExternalID, hero.ID)

	return &model.SourceRecord{
		Source:     a.Name(),
		Confidence: a.Confidence(),
		Fields:     fields,
	}, nil
}
