package ui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/forest-guardian/copernicus-stats/internal/delivery"
)

type menuOption struct {
	title   string
	handler func(ctx context.Context) error
}

// Menu is the interactive front end over the delivery runs.
type Menu struct {
	console *Console
	deps    *delivery.Deps
}

// NewMenu builds a menu. deps may be nil, in which case only local actions work.
func NewMenu(console *Console, deps *delivery.Deps) *Menu {
	return &Menu{console: console, deps: deps}
}

var errExit = errors.New("exit")

func (m *Menu) options() []menuOption {
	return []menuOption{
		{"Run a statistics job", m.RunJob},
		{"Render an index series for an area", m.AnalyzeIndices},
		{"Detect forest loss between two periods", m.AnalyzeForestLoss},
		{"Plot a column of a statistics table", m.PlotTable},
		{"View the list of built-in evalscripts", m.ListEvalscripts},
		{"View the list of saved statistics tables", m.ListResults},
		{"Exit the application", func(context.Context) error { return errExit }},
	}
}

// Show displays the main menu until the user exits, input ends or ctx is cancelled.
func (m *Menu) Show(ctx context.Context) error {
	options := m.options()
	for ctx.Err() == nil {
		info.Fprintln(m.console.out, "===================")
		for i, opt := range options {
			info.Fprintf(m.console.out, "%d. %s\n", i+1, opt.title)
		}

		choice, err := m.console.ReadInt("Please enter your choice: ", 1, len(options))
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			m.console.PrintError(err.Error())
			continue
		}

		err = options[choice-1].handler(ctx)
		switch {
		case errors.Is(err, errExit):
			fmt.Fprintln(m.console.out, "Exiting...")
			return nil
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			m.console.PrintError(err.Error())
		}
	}
	return ctx.Err()
}

func (m *Menu) remote() error {
	if m.deps == nil {
		return errors.New("missing required environment variables: COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET")
	}
	return nil
}
