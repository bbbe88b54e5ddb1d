package feed

import (
	"context"
	"fmt"

	"github.com/emmamdp/rickandmorty/internal/model"
	"github.com/emmamdp/rickandmorty/internal/reconciler"
	"github.com/emmamdp/rickandmorty/internal/store"
)

type windowState struct {
	FirstID int
	LastID  int
	Size    int

	evictedHead bool
	evictedTail bool
}

// nextWindow grows the window by the characters a cycle fetched and applies
// MaxWindow eviction from the end opposite to the growth. Eviction drops whole
// pages only, so the window may hold fewer than MaxWindow characters.
func (f *Feed) nextWindow(loadType model.LoadType, result reconciler.Result) (windowState, error) {
	current := f.Status()
	first, last := current.FirstID, current.LastID

	switch loadType {
	case model.LoadRefresh:
		first, last = result.FirstID, result.LastID
	case model.LoadAppend:
		if result.Count > 0 {
			if first == 0 {
				first = result.FirstID
			}
			if result.LastID > last {
				last = result.LastID
			}
		}
	case model.LoadPrepend:
		if result.Count > 0 {
			if first == 0 || result.FirstID < first {
				first = result.FirstID
			}
			if last == 0 {
				last = result.LastID
			}
		}
	}

	if first == 0 || last == 0 {
		return windowState{}, nil
	}

	ids, err := f.windowIDs(first, last)
	if err != nil {
		return windowState{}, err
	}
	if len(ids) == 0 {
		return windowState{}, nil
	}

	var w windowState
	if f.maxWindow > 0 && len(ids) > f.maxWindow {
		if loadType == model.LoadAppend {
			cut, err := f.headCut(ids, len(ids)-f.maxWindow)
			if err != nil {
				return windowState{}, err
			}
			if cut < len(ids) {
				ids = ids[cut:]
				w.evictedHead = true
			}
		} else {
			end, err := f.tailCut(ids, f.maxWindow)
			if err != nil {
				return windowState{}, err
			}
			if end > 0 {
				ids = ids[:end]
				w.evictedTail = true
			}
		}
	}

	w.FirstID = ids[0]
	w.LastID = ids[len(ids)-1]
	w.Size = len(ids)
	return w, nil
}

// headCut moves a head eviction cut forward past the rest of the page the
// last evicted character belongs to, so the window always starts on a page
// boundary whose key points at the evicted page.
func (f *Feed) headCut(ids []int, cut int) (int, error) {
	evicted, err := f.pageOf(ids[cut-1])
	if err != nil {
		return 0, err
	}
	for cut < len(ids) {
		page, err := f.pageOf(ids[cut])
		if err != nil {
			return 0, err
		}
		if page != evicted {
			break
		}
		cut++
	}
	return cut, nil
}

// tailCut moves a tail eviction cut back before the page the first evicted
// character belongs to.
func (f *Feed) tailCut(ids []int, end int) (int, error) {
	evicted, err := f.pageOf(ids[end])
	if err != nil {
		return 0, err
	}
	for end > 0 {
		page, err := f.pageOf(ids[end-1])
		if err != nil {
			return 0, err
		}
		if page != evicted {
			break
		}
		end--
	}
	return end, nil
}

func (f *Feed) pageOf(characterID int) (int, error) {
	key, err := f.store.GetPaginationKey(context.Background(), characterID)
	if err != nil {
		return 0, fmt.Errorf("reading pagination key %d: %w", characterID, err)
	}
	return key.Page(), nil
}

func (f *Feed) windowIDs(first, last int) ([]int, error) {
	items, err := f.store.ListCharacters(context.Background(), store.ListOptions{FromID: first, ToID: last})
	if err != nil {
		return nil, fmt.Errorf("listing window %d..%d: %w", first, last, err)
	}
	return model.CharacterIDs(items), nil
}
