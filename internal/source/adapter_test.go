package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longbox-labs/entity-verify/internal/model"
	"github.com/longbox-labs/entity-verify/pkg/comicvine"
	"github.com/longbox-labs/entity-verify/pkg/marvel"
	"github.com/longbox-labs/entity-verify/pkg/superhero"
)

type fakeComicVine struct {
	byName map[string]*comicvine.Character
	err    error
	calls  []string
}

func (f *fakeComicVine) FindCharacter(_ context.Context, name string) (*comicvine.Character, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	return f.byName[name], nil
}

type fakeMarvel struct {
	ch  *marvel.Character
	err error
}

func (f *fakeMarvel) FindCharacter(_ context.Context, _ string) (*marvel.Character, error) {
	return f.ch, f.err
}

type fakeSuperhero struct {
	hero *superhero.Hero
	err  error
}

func (f *fakeSuperhero) Search(_ context.Context, _ string) (*superhero.Hero, error) {
	return f.hero, f.err
}

func TestComicVineAdapter_NormalizesFields(t *testing.T) {
	client := &fakeComicVine{byName: map[string]*comicvine.Character{
		"Spider-Man": {
			ID:              1443,
			RealName:        "Peter Parker",
			Deck:            "Wall-crawler.",
			FirstAppearance: "Amazing Fantasy #15",
			Creators:        []string{"Stan Lee"},
			Publisher:       "Marvel",
		},
	}}
	a := NewComicVineAdapter(client)

	rec, err := a.Fetch(context.Background(), "Spider-Man")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "comic_vine", rec.Source)
	assert.Equal(t, ComicVineConfidence, rec.Confidence)
	assert.Equal(t, "Peter Parker", rec.Fields[model.FieldRealName])
	assert.Equal(t, "Wall-crawler.", rec.Fields[model.FieldBiography])
	assert.Equal(t, "Amazing Fantasy #15", rec.Fields[model.FieldFirstAppearance])
	assert.Equal(t, "1443", rec.Fields[model.FieldExternalID])
	// Empty fields must be omitted, not present as "".
	_, hasTeams := rec.Fields[model.FieldTeams]
	assert.False(t, hasTeams)
}

func TestComicVineAdapter_TriesNameVariants(t *testing.T) {
	client := &fakeComicVine{byName: map[string]*comicvine.Character{
		"Spider-Man": {ID: 1443, RealName: "Peter Parker"},
	}}
	a := NewComicVineAdapter(client)

	rec, err := a.Fetch(context.Background(), "Spider-Man (Miles Morales)")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"Spider-Man (Miles Morales)", "Spider-Man"}, client.calls)
}

func TestComicVineAdapter_NoMatchIsNil(t *testing.T) {
	a := NewComicVineAdapter(&fakeComicVine{})
	rec, err := a.Fetch(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestComicVineAdapter_ErrorPropagates(t *testing.T) {
	a := NewComicVineAdapter(&fakeComicVine{err: errors.New("boom")})
	_, err := a.Fetch(context.Background(), "Spider-Man")
	require.Error(t, err)
}

func TestMarvelAdapter_NormalizesFields(t *testing.T) {
	a := NewMarvelAdapter(&fakeMarvel{ch: &marvel.Character{
		ID:              1009610,
		Description:     "Bitten by a radioactive spider.",
		FirstAppearance: "Amazing Fantasy (1962) #15",
		Series:          []string{"Amazing Spider-Man"},
		ImageURL:        "https://img.example/s.jpg",
	}})

	rec, err := a.Fetch(context.Background(), "Spider-Man")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "marvel", rec.Source)
	assert.Equal(t, MarvelConfidence, rec.Confidence)
	assert.Equal(t, "Marvel Comics", rec.Fields[model.FieldPublisher])
	assert.Equal(t, "Amazing Fantasy (1962) #15", rec.Fields[model.FieldFirstAppearance])
	assert.Equal(t, []string{"Amazing Spider-Man"}, rec.Fields[model.FieldTeams])
}

func TestMarvelAdapter_NoMatchIsNil(t *testing.T) {
	a := NewMarvelAdapter(&fakeMarvel{})
	rec, err := a.Fetch(context.Background(), "Batman")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSuperheroAdapter_NormalizesFields(t *testing.T) {
	a := NewSuperheroAdapter(&fakeSuperhero{hero: &superhero.Hero{
		ID:               "620",
		FullName:         "Peter Parker",
		FirstAppearance:  "Amazing Fantasy #15",
		Publisher:        "Marvel Comics",
		GroupAffiliation: []string{"Avengers"},
		Gender:           "Male",
		PowerStats:       []string{"intelligence: 90"},
	}})

	rec, err := a.Fetch(context.Background(), "Spider-Man")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "superhero_api", rec.Source)
	assert.Equal(t, SuperheroConfidence, rec.Confidence)
	assert.Equal(t, "Peter Parker", rec.Fields[model.FieldRealName])
	assert.Equal(t, []string{"Avengers"}, rec.Fields[model.FieldAllies])
	assert.Equal(t, "Male", rec.Fields[model.FieldGender])
	assert.Equal(t, "620", rec.Fields[model.FieldExternalID])
}

func TestRegistry_OrderAndNames(t *testing.T) {
	r := NewRegistry(
		NewMarvelAdapter(&fakeMarvel{}),
		NewComicVineAdapter(&fakeComicVine{}),
	)
	assert.Equal(t, []string{"marvel", "comic_vine"}, r.Names())
	assert.Len(t, r.Adapters(), 2)
}
