package httpapi

import (
	"net/http"
	"testing"

	"github.com/ironsheep/card-canvas/internal/design"
	"github.com/ironsheep/card-canvas/internal/templates"
)

func putTemplate(t *testing.T, env *testEnv, id, name, category string) templates.Template {
	t.Helper()
	resp := env.do(t, http.MethodPut, "/templates/"+id, templates.Template{
		ID:       "ignored",
		Name:     name,
		Category: category,
		Pages:    []design.Page{{Header: name, Image: "front.png"}},
	})
	expectStatus(t, resp, http.StatusOK)
	var got templates.Template
	decodeBody(t, resp, &got)
	return got
}

func TestTemplates_CRUD(t *testing.T) {
	env := newTestEnv(t)

	got := putTemplate(t, env, "thanks", "Thank You", " Gratitude ")
	if got.ID != "thanks" {
		t.Errorf("path id should win: got %s", got.ID)
	}
	if got.Category != "Gratitude" {
		t.Errorf("category: got %q", got.Category)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be stamped")
	}

	resp := env.do(t, http.MethodGet, "/templates/thanks", nil)
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodGet, "/templates/thanks/design", nil)
	expectStatus(t, resp, http.StatusOK)
	var d design.Design
	decodeBody(t, resp, &d)
	if d.Name != "Thank You" || len(d.Pages) != 1 || d.ID == "" {
		t.Errorf("design from template: id=%q name=%q pages=%d", d.ID, d.Name, len(d.Pages))
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/templates/thanks", nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/templates/thanks", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/templates/thanks", nil), http.StatusNotFound)
}

func TestTemplates_ListAndCategories(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/templates", nil)
	expectStatus(t, resp, http.StatusOK)
	var list []templates.Template
	decodeBody(t, resp, &list)
	if list == nil || len(list) != 0 {
		t.Errorf("empty registry should list [], got %v", list)
	}

	putTemplate(t, env, "b1", "Balloons", "Birthday")
	putTemplate(t, env, "b2", "Cake", "birthday")
	putTemplate(t, env, "w1", "Rings", "Wedding")

	resp = env.do(t, http.MethodGet, "/templates?category=BIRTHDAY", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &list)
	if len(list) != 2 || list[0].Name != "Balloons" || list[1].Name != "Cake" {
		t.Errorf("birthday templates: %+v", list)
	}

	resp = env.do(t, http.MethodGet, "/categories", nil)
	expectStatus(t, resp, http.StatusOK)
	var cats []templates.Category
	decodeBody(t, resp, &cats)
	if len(cats) != 3 {
		t.Errorf("categories: %+v", cats)
	}
}

func TestTemplates_Invalid(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPut, "/templates/empty", templates.Template{Name: "No pages"})
	expectStatus(t, resp, http.StatusBadRequest)
}
