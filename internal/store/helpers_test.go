package store

import "github.com/emmamdp/rickandmorty/internal/model"

func filterOf(name, status string) model.Filter {
	return model.Filter{Name: name, Status: status}
}
