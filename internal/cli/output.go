package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shaiso/flowproc/internal/domain"
)

// Output форматирует вывод CLI: таблицы go-pretty или JSON (--json).
// Данные пишутся в stdout, сообщения — в stderr.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output.
func NewOutput(jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, w: os.Stdout, errW: os.Stderr}
}

// Print выводит строки таблицей или jsonData в JSON-режиме.
func (o *Output) Print(headers table.Row, rows []table.Row, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	tw := o.newTable("")
	tw.AppendHeader(headers)
	tw.AppendRows(rows)
	tw.Render()
}

// Details выводит пары "поле — значение" с заголовком.
func (o *Output) Details(title string, rows []table.Row, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	tw := o.newTable(title)
	tw.AppendRows(rows)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.Bold}},
	})
	tw.Render()
}

// JSON выводит v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func (o *Output) newTable(title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(o.w)
	tw.SetStyle(table.StyleLight)
	if title != "" {
		tw.SetTitle(title)
	}
	return tw
}

// statusText раскрашивает статус здоровья для терминала.
func statusText(s domain.HealthStatus) string {
	switch s {
	case domain.HealthStatusHealthy:
		return text.FgGreen.Sprint(s)
	case domain.HealthStatusDegraded:
		return text.FgYellow.Sprint(s)
	case domain.HealthStatusUnhealthy, domain.HealthStatusStopped:
		return text.FgRed.Sprint(s)
	default:
		return string(s)
	}
}
