package producer

import (
	"context"
	"text/template"

	agentctx "github.com/easyops/storyctx/pkg/context"
)

// DefaultGuardTemplate 守卫指令模板，可引用 Scene 的字段
const DefaultGuardTemplate = `You are writing as {{if .Persona}}{{.Persona}}{{else}}the narrator{{end}}. Stay in character.
Treat the bracketed context blocks as background knowledge; never quote them or mention that they exist.`

// DefaultHeaderTemplate 场景头模板
const DefaultHeaderTemplate = `{{range .Badges}}[{{.}}] {{end}}{{if .Balance}}Balance: {{.Balance}}{{end}}
{{join .Fields " | "}}`

// DefaultCombatTemplate 战斗头模板
const DefaultCombatTemplate = `COMBAT{{if .Round}} round {{.Round}}{{end}}{{with .Location}} at {{.}}{{end}}
{{if .Enemies}}Enemies: {{join .Enemies ", "}}{{end}}
{{if .Objective}}Objective: {{.Objective}}{{end}}`

// Guard 渲染固定的守卫指令，代入当前角色名
type Guard struct {
	scene SceneSource
	tmpl  *template.Template
}

// NewGuard 创建守卫生产者，text 为空时使用 DefaultGuardTemplate
func NewGuard(scene SceneSource, text string) (*Guard, error) {
	tmpl, err := templateOrDefault("guard", text, DefaultGuardTemplate)
	if err != nil {
		return nil, err
	}
	return &Guard{scene: scene, tmpl: tmpl}, nil
}

// Name 实现 Producer
func (g *Guard) Name() agentctx.ComponentName { return agentctx.ComponentGuard }

// Predict 实现 Producer
func (g *Guard) Predict(ctx context.Context) (agentctx.Candidate, error) {
	scene, err := g.scene.Scene(ctx)
	if err != nil {
		return agentctx.Candidate{}, err
	}
	text, err := render(g.tmpl, scene)
	if err != nil {
		return agentctx.Candidate{}, err
	}
	return agentctx.Candidate{Text: text}, nil
}

// Header 渲染地点、日期、时段和天气，前缀剧本标记与余额提示
type Header struct {
	scene SceneSource
	tmpl  *template.Template
}

type headerView struct {
	Badges  []string
	Balance string
	Fields  []string
	Scene   Scene
}

// NewHeader 创建场景头生产者，text 为空时使用 DefaultHeaderTemplate
func NewHeader(scene SceneSource, text string) (*Header, error) {
	tmpl, err := templateOrDefault("header", text, DefaultHeaderTemplate)
	if err != nil {
		return nil, err
	}
	return &Header{scene: scene, tmpl: tmpl}, nil
}

// Name 实现 Producer
func (h *Header) Name() agentctx.ComponentName { return agentctx.ComponentHeader }

// Predict 实现 Producer
func (h *Header) Predict(ctx context.Context) (agentctx.Candidate, error) {
	scene, err := h.scene.Scene(ctx)
	if err != nil {
		return agentctx.Candidate{}, err
	}

	view := headerView{Badges: scene.Badges, Balance: scene.Balance, Scene: scene}
	for _, f := range []struct{ label, value string }{
		{"Location", scene.Location},
		{"Date", scene.Date},
		{"Time", scene.TimeOfDay},
		{"Weather", scene.Weather},
	} {
		if f.value != "" {
			view.Fields = append(view.Fields, f.label+": "+f.value)
		}
	}

	text, err := render(h.tmpl, view)
	if err != nil {
		return agentctx.Candidate{}, err
	}
	return agentctx.Candidate{Text: text}, nil
}

// CombatHeader 仅在战斗模式下渲染；其余时候返回空文本，使注入槽被清除
type CombatHeader struct {
	scene SceneSource
	tmpl  *template.Template
}

type combatView struct {
	Round     int
	Location  string
	Enemies   []string
	Objective string
}

// NewCombatHeader 创建战斗头生产者，text 为空时使用 DefaultCombatTemplate
func NewCombatHeader(scene SceneSource, text string) (*CombatHeader, error) {
	tmpl, err := templateOrDefault("combat_header", text, DefaultCombatTemplate)
	if err != nil {
		return nil, err
	}
	return &CombatHeader{scene: scene, tmpl: tmpl}, nil
}

// Name 实现 Producer
func (c *CombatHeader) Name() agentctx.ComponentName { return agentctx.ComponentCombatHeader }

// Predict 实现 Producer
func (c *CombatHeader) Predict(ctx context.Context) (agentctx.Candidate, error) {
	scene, err := c.scene.Scene(ctx)
	if err != nil {
		return agentctx.Candidate{}, err
	}
	if !scene.InCombat() {
		return agentctx.Candidate{}, nil
	}

	text, err := render(c.tmpl, combatView{
		Round:     scene.Combat.Round,
		Location:  scene.Location,
		Enemies:   scene.Combat.Enemies,
		Objective: scene.Combat.Objective,
	})
	if err != nil {
		return agentctx.Candidate{}, err
	}
	return agentctx.Candidate{Text: text}, nil
}

func templateOrDefault(name, text, fallback string) (*template.Template, error) {
	if text == "" {
		return mustTemplate(name, fallback), nil
	}
	return parseTemplate(name, text)
}

// 编译时接口检查
var (
	_ agentctx.Producer = (*Guard)(nil)
	_ agentctx.Producer = (*Header)(nil)
	_ agentctx.Producer = (*CombatHeader)(nil)
)
