package remote

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/emmamdp/rickandmorty/internal/model"
)

type pageResponse struct {
	Info    pageInfo       `json:"info"`
	Results []characterDTO `json:"results"`
}

type pageInfo struct {
	Count int     `json:"count"`
	Pages int     `json:"pages"`
	Next  *string `json:"next"`
	Prev  *string `json:"prev"`
}

type characterDTO struct {
	ID       int         `json:"id"`
	Name     string      `json:"name"`
	Status   string      `json:"status"`
	Species  string      `json:"species"`
	Type     string      `json:"type"`
	Gender   string      `json:"gender"`
	Origin   locationRef `json:"origin"`
	Location locationRef `json:"location"`
	Image    string      `json:"image"`
	Episode  []string    `json:"episode"`
	URL      string      `json:"url"`
	Created  string      `json:"created"`
}

type locationRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (r pageResponse) toModel() model.Page {
	items := make([]model.Character, 0, len(r.Results))
	for _, dto := range r.Results {
		items = append(items, dto.toModel())
	}
	return model.Page{
		Count:        r.Info.Count,
		TotalPages:   r.Info.Pages,
		NextPage:     pageParam(r.Info.Next),
		PreviousPage: pageParam(r.Info.Prev),
		Characters:   items,
	}
}

func (d characterDTO) toModel() model.Character {
	episodes := d.Episode
	if episodes == nil {
		episodes = []string{}
	}
	return model.Character{
		ID:           d.ID,
		Name:         d.Name,
		Status:       model.ParseStatus(d.Status),
		Species:      d.Species,
		Type:         d.Type,
		Gender:       model.ParseGender(d.Gender),
		OriginName:   d.Origin.Name,
		LocationName: d.Location.Name,
		ImageURL:     d.Image,
		EpisodeURLs:  episodes,
		Created:      d.Created,
	}
}

// pageParam extracts the page query parameter from an info.next or info.prev
// link. Blank links and links without a numeric page yield nil.
func pageParam(link *string) *int {
	if link == nil || strings.TrimSpace(*link) == "" {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(*link))
	if err != nil {
		return nil
	}
	raw := u.Query().Get("page")
	if raw == "" {
		return nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &page
}
