package routes

import (
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/any-hub/img-hub/internal/manipulator/backend"
	"github.com/any-hub/img-hub/internal/params"
)

// Diagnostics 汇总诊断接口需要展示的运行时状态。
type Diagnostics struct {
	Defaults      params.Params
	Presets       params.Presets
	ActiveBackend string
	Chain         []string
	// Gatherer 为 nil 时不注册 /-/metrics。
	Gatherer prometheus.Gatherer
}

// RegisterDiagnosticsRoutes 暴露 /-/presets、/-/backends 与 /-/metrics，供 SRE 查询当前配置与指标。
func RegisterDiagnosticsRoutes(app *fiber.App, diag Diagnostics) {
	if app == nil {
		return
	}

	app.Get("/-/presets", func(c fiber.Ctx) error {
		return c.JSON(presetsPayload{
			Defaults: nonNil(diag.Defaults),
			Presets:  encodePresets(diag.Presets),
		})
	})

	app.Get("/-/backends", func(c fiber.Ctx) error {
		return c.JSON(backendsPayload{
			Active:   diag.ActiveBackend,
			Backends: encodeBackends(backend.List()),
			Chain:    append([]string(nil), diag.Chain...),
		})
	})

	if diag.Gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(diag.Gatherer, promhttp.HandlerOpts{})))
	}
}

type presetsPayload struct {
	Defaults map[string]string `json:"defaults"`
	Presets  []presetPayload   `json:"presets"`
}

type presetPayload struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params"`
}

type backendsPayload struct {
	Active   string           `json:"active"`
	Backends []backendPayload `json:"backends"`
	Chain    []string         `json:"chain"`
}

type backendPayload struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

func encodePresets(presets params.Presets) []presetPayload {
	result := make([]presetPayload, 0, len(presets))
	for name, values := range presets {
		result = append(result, presetPayload{Name: name, Params: nonNil(values)})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func encodeBackends(metas []backend.Metadata) []backendPayload {
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].Key < metas[j].Key
	})
	result := make([]backendPayload, 0, len(metas))
	for _, meta := range metas {
		result = append(result, backendPayload{Key: meta.Key, Description: meta.Description})
	}
	return result
}

func nonNil(p params.Params) map[string]string {
	if p == nil {
		return map[string]string{}
	}
	return p.Clone()
}
