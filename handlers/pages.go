package handlers

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streamfinder/config"
	"streamfinder/internal/search"
	"streamfinder/metrics"
	"streamfinder/models"
	"streamfinder/services/contentapi"

	"github.com/gorilla/mux"
	"github.com/sourcegraph/conc"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/*.html
var pageTemplates embed.FS

// ContentService is the content API as seen by the page handlers.
type ContentService interface {
	search.Fetcher
	Trending(ctx context.Context, contentType string) (*models.TrendingResponse, error)
	Platforms(ctx context.Context) (*models.PlatformDirectory, error)
	PlatformContent(ctx context.Context, key string, contentType models.ContentType, page int) (*models.SearchResponse, error)
	CastSupport(ctx context.Context) (*models.CastSupportSummary, error)
}

// PagesHandler renders the server side HTML pages.
type PagesHandler struct {
	content     ContentService
	ui          config.UISettings
	waitTimeout time.Duration
	printer     *message.Printer

	homeTemplate      *template.Template
	searchTemplate    *template.Template
	platformsTemplate *template.Template
	platformTemplate  *template.Template
	notFoundTemplate  *template.Template
}

func NewPagesHandler(content ContentService, ui config.UISettings, waitTimeout time.Duration) (*PagesHandler, error) {
	printer := message.NewPrinter(language.English)
	funcMap := template.FuncMap{
		"count": func(n int) string { return printer.Sprintf("%d", n) },
		"first": func(n int, items any) any {
			switch v := items.(type) {
			case []string:
				return v[:min(n, len(v))]
			case []models.PlatformRef:
				return v[:min(n, len(v))]
			case []models.ResultItem:
				return v[:min(n, len(v))]
			case []models.PlatformEntry:
				return v[:min(n, len(v))]
			default:
				return items
			}
		},
		"plural": func(n int, word string) string {
			if n == 1 {
				return word
			}
			return word + "s"
		},
		"lower": strings.ToLower,
		"join":  strings.Join,
	}

	baseContent, err := pageTemplates.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("read base template: %w", err)
	}
	createPageTemplate := func(pageName string) (*template.Template, error) {
		pageContent, err := pageTemplates.ReadFile("templates/" + pageName)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", pageName, err)
		}
		tmpl, err := template.New("page").Funcs(funcMap).Parse(string(baseContent))
		if err != nil {
			return nil, fmt.Errorf("parse base for %s: %w", pageName, err)
		}
		if tmpl, err = tmpl.Parse(string(pageContent)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", pageName, err)
		}
		return tmpl, nil
	}

	h := &PagesHandler{content: content, ui: ui, waitTimeout: waitTimeout, printer: printer}
	for name, dst := range map[string]**template.Template{
		"home.html":      &h.homeTemplate,
		"search.html":    &h.searchTemplate,
		"platforms.html": &h.platformsTemplate,
		"platform.html":  &h.platformTemplate,
		"not_found.html": &h.notFoundTemplate,
	} {
		if *dst, err = createPageTemplate(name); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Link is an anchor in a tab bar or pager.
type Link struct {
	Label  string
	URL    string
	Active bool
}

// PageLink is one pager entry.
type PageLink struct {
	search.PageItem
	URL string
}

// Pager is a rendered pagination bar.
type Pager struct {
	Prev, Next                 string
	PrevDisabled, NextDisabled bool
	Items                      []PageLink
}

// SelectOption is an option of a select element.
type SelectOption struct {
	Value    string
	Label    string
	Selected bool
}

// PageData is shared by every page.
type PageData struct {
	SiteName    string
	Title       string
	CurrentPath string
	SearchText  string
}

type HomePageData struct {
	PageData
	Hero           []models.ResultItem
	Trending       []models.ResultItem
	TrendingError  bool
	Platforms      []models.PlatformEntry
	PlatformsError bool
	PlatformCount  int
}

type SearchPageData struct {
	PageData
	View       search.View
	CountLabel string
	Tabs       []Link
	Sorts      []SelectOption
	Platforms  []SelectOption
	Platform   string // display name of the active platform filter
	SortForm   url.Values
	FilterForm url.Values
	Pager      *Pager
}

type PlatformsPageData struct {
	PageData
	Platforms   []models.PlatformEntry
	CastSupport *models.CastSupportSummary
	Error       bool
}

type PlatformPageData struct {
	PageData
	Key        string
	Platform   models.Platform
	Tabs       []Link
	Results    []models.ResultItem
	CountLabel string
	Pager      *Pager
	Error      bool
}

// Home renders the landing page: hero, trending grid and featured platforms.
func (h *PagesHandler) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		trending     *models.TrendingResponse
		directory    *models.PlatformDirectory
		trendErr     error
		directoryErr error
		wg           conc.WaitGroup
	)
	wg.Go(func() { trending, trendErr = h.content.Trending(ctx, "all") })
	wg.Go(func() { directory, directoryErr = h.content.Platforms(ctx) })
	wg.Wait()

	data := HomePageData{
		PageData:       h.pageData("Free Movies & TV Shows", "/", ""),
		TrendingError:  trendErr != nil,
		PlatformsError: directoryErr != nil,
	}
	if trendErr != nil {
		log.Printf("[pages] trending failed: %v", trendErr)
	} else {
		data.Trending = trending.Results[:min(h.ui.ItemsPerPage, len(trending.Results))]
		data.Hero = trending.Results[:min(h.ui.HeroItems, len(trending.Results))]
	}
	if directoryErr != nil {
		log.Printf("[pages] platforms failed: %v", directoryErr)
	} else {
		data.Platforms = directory.Sorted()
		data.PlatformCount = len(data.Platforms)
	}

	h.render(w, "home", http.StatusOK, h.homeTemplate, data, outcome(trendErr))
}

// Search renders the results page for the URL's query, page and sort.
func (h *PagesHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	ctrl := search.NewController(ctx, h.content)
	defer ctrl.Close()

	var (
		directory *models.PlatformDirectory
		wg        conc.WaitGroup
	)
	wg.Go(func() {
		var err error
		if directory, err = h.content.Platforms(ctx); err != nil {
			log.Printf("[pages] platforms for search filter failed: %v", err)
		}
	})
	ctrl.Navigate(r.URL.Query())
	waitErr := ctrl.Wait(ctx)
	wg.Wait()
	if waitErr != nil && r.Context().Err() != nil {
		return
	}

	view := ctrl.View()
	q := view.Query
	data := SearchPageData{
		PageData: h.pageData("Search", "/search", q.Text),
		View:     view,
	}
	if !q.IsEmpty() {
		data.Title = `Search Results for "` + q.Text + `"`
		data.CountLabel = h.printer.Sprintf("%d %s found", view.TotalResults, strings.ToLower(q.ContentType.Label()))
	}

	for _, ct := range []models.ContentType{models.ContentTypeMulti, models.ContentTypeMovie, models.ContentTypeTV} {
		tq := q
		tq.ContentType = ct
		data.Tabs = append(data.Tabs, Link{
			Label:  tabLabel(ct),
			URL:    "/search?" + search.EncodeURL(tq, 1, view.Sort).Encode(),
			Active: ct == q.ContentType,
		})
	}
	for _, key := range search.SortKeys {
		data.Sorts = append(data.Sorts, SelectOption{Value: string(key), Label: key.Label(), Selected: key == view.Sort})
	}
	data.Platforms = append(data.Platforms, SelectOption{Value: search.PlatformAll, Label: "All Platforms", Selected: q.Platform == ""})
	for _, entry := range directory.Sorted() {
		data.Platforms = append(data.Platforms, SelectOption{Value: entry.Key, Label: entry.Name, Selected: entry.Key == q.Platform})
	}
	if p, ok := directory.Lookup(q.Platform); ok {
		data.Platform = p.Name
	}
	// Sorting keeps the page; a platform change goes back to page 1.
	data.SortForm = search.EncodeURL(q, view.Page, search.SortRelevance)
	data.FilterForm = search.EncodeURL(q, 1, view.Sort)
	data.FilterForm.Del("platform")
	data.Pager = pagerFor(view.Pagination, func(page int) string {
		return "/search?" + search.EncodeURL(q, page, view.Sort).Encode() + "#top"
	})

	status := http.StatusOK
	if view.State == search.StateFailed {
		status = http.StatusBadGateway
	}
	h.render(w, "search", status, h.searchTemplate, data, view.State.String())
}

// Platforms renders the platform directory with casting support.
func (h *PagesHandler) Platforms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		directory    *models.PlatformDirectory
		cast         *models.CastSupportSummary
		directoryErr error
		wg           conc.WaitGroup
	)
	wg.Go(func() { directory, directoryErr = h.content.Platforms(ctx) })
	wg.Go(func() {
		var err error
		if cast, err = h.content.CastSupport(ctx); err != nil {
			log.Printf("[pages] cast support failed: %v", err)
		}
	})
	wg.Wait()

	data := PlatformsPageData{
		PageData:    h.pageData("Free Streaming Platforms", "/platforms", ""),
		CastSupport: cast,
		Error:       directoryErr != nil,
	}
	status := http.StatusOK
	if directoryErr != nil {
		log.Printf("[pages] platforms failed: %v", directoryErr)
		status = http.StatusBadGateway
	} else {
		data.Platforms = directory.Sorted()
	}
	h.render(w, "platforms", status, h.platformsTemplate, data, outcome(directoryErr))
}

// Platform renders one platform's catalogue. Unknown keys get the 404 page.
func (h *PagesHandler) Platform(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := mux.Vars(r)["key"]
	params := r.URL.Query()
	contentType := models.ParseContentType(params.Get("content_type"))
	page, _ := strconv.Atoi(params.Get("page"))
	if page < 1 {
		page = 1
	}

	var (
		directory    *models.PlatformDirectory
		resp         *models.SearchResponse
		directoryErr error
		contentErr   error
		wg           conc.WaitGroup
	)
	wg.Go(func() { directory, directoryErr = h.content.Platforms(ctx) })
	wg.Go(func() { resp, contentErr = h.content.PlatformContent(ctx, key, contentType, page) })
	wg.Wait()

	platform, known := directory.Lookup(key)
	if errors.Is(contentErr, contentapi.ErrNotFound) || (directoryErr == nil && !known) {
		h.NotFound(w, r)
		return
	}

	data := PlatformPageData{
		PageData: h.pageData(platform.Name, r.URL.Path, ""),
		Key:      key,
		Platform: platform,
		Error:    contentErr != nil,
	}
	if data.Title == "" {
		data.Title = key
	}
	for _, ct := range []models.ContentType{models.ContentTypeMulti, models.ContentTypeMovie, models.ContentTypeTV} {
		if known && !platform.Supports(ct) {
			continue
		}
		data.Tabs = append(data.Tabs, Link{
			Label:  tabLabel(ct),
			URL:    platformURL(key, ct, 1),
			Active: ct == contentType,
		})
	}

	status := http.StatusOK
	if contentErr != nil {
		log.Printf("[pages] platform %s content failed: %v", key, contentErr)
		status = http.StatusBadGateway
	} else {
		data.Results = resp.Results
		data.CountLabel = h.printer.Sprintf("%d titles", resp.TotalResults)
		data.Pager = pagerFor(search.BuildPagination(page, resp.TotalPages), func(n int) string {
			return platformURL(key, contentType, n) + "#top"
		})
	}
	h.render(w, "platform", status, h.platformTemplate, data, outcome(contentErr))
}

// NotFound renders the 404 page.
func (h *PagesHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, "not_found", http.StatusNotFound, h.notFoundTemplate, h.pageData("Page Not Found", r.URL.Path, ""), "not_found")
}

func (h *PagesHandler) pageData(title, path, text string) PageData {
	return PageData{SiteName: h.ui.SiteName, Title: title, CurrentPath: path, SearchText: text}
}

func (h *PagesHandler) render(w http.ResponseWriter, page string, status int, tmpl *template.Template, data any, result string) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		log.Printf("[pages] template %s: %v", page, err)
		metrics.PageRenders.WithLabelValues(page, "template_error").Inc()
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	metrics.PageRenders.WithLabelValues(page, result).Inc()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func tabLabel(ct models.ContentType) string {
	switch ct {
	case models.ContentTypeMovie:
		return "Movies"
	case models.ContentTypeTV:
		return "TV Shows"
	default:
		return "All"
	}
}

func platformURL(key string, ct models.ContentType, page int) string {
	v := url.Values{}
	if ct != models.ContentTypeMulti {
		v.Set("content_type", string(ct))
	}
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	u := "/platforms/" + url.PathEscape(key)
	if len(v) > 0 {
		u += "?" + v.Encode()
	}
	return u
}

func pagerFor(p *search.Pagination, link func(page int) string) *Pager {
	if p == nil {
		return nil
	}
	pager := &Pager{
		Prev:         link(p.Prev),
		Next:         link(p.Next),
		PrevDisabled: p.PrevDisabled,
		NextDisabled: p.NextDisabled,
	}
	for _, it := range p.Items {
		pl := PageLink{PageItem: it}
		if it.Type == search.PageItemNumber {
			pl.URL = link(it.Number)
		}
		pager.Items = append(pager.Items, pl)
	}
	return pager
}
