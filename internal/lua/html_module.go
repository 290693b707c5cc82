package lua

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lua "github.com/yuin/gopher-lua"
)

const luaSelectionTypeName = "html_selection"

// HTMLModule exposes goquery selectors. Documents and elements share one
// userdata type, so both html.select(doc, sel) and doc:select(sel) work.
type HTMLModule struct{}

func NewHTMLModule() *HTMLModule {
	return &HTMLModule{}
}

func (h *HTMLModule) Name() string {
	return "html"
}

func (h *HTMLModule) Register(L *lua.LState) error {
	methods := map[string]lua.LGFunction{
		"select":     h.htmlSelect,
		"select_one": h.htmlSelectOne,
		"text":       h.htmlText,
		"attr":       h.htmlAttr,
		"html":       h.htmlHTML,
	}

	mt := L.NewTypeMetatable(luaSelectionTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), methods))

	htmlTable := L.SetFuncs(L.NewTable(), methods)
	L.SetField(htmlTable, "parse", L.NewFunction(h.htmlParse))

	L.SetGlobal(h.Name(), htmlTable)
	return nil
}

func pushSelection(L *lua.LState, s *goquery.Selection) {
	ud := L.NewUserData()
	ud.Value = s
	L.SetMetatable(ud, L.GetTypeMetatable(luaSelectionTypeName))
	L.Push(ud)
}

func checkSelection(L *lua.LState, n int) *goquery.Selection {
	ud := L.CheckUserData(n)
	if s, ok := ud.Value.(*goquery.Selection); ok {
		return s
	}
	L.ArgError(n, "expected html document or element")
	return nil
}

func (h *HTMLModule) htmlParse(L *lua.LState) int {
	htmlContent := L.CheckString(1)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(fmt.Sprintf("failed to parse HTML: %s", err.Error())))
		return 2
	}

	pushSelection(L, doc.Selection)
	return 1
}

func (h *HTMLModule) htmlSelect(L *lua.LState) int {
	selection := checkSelection(L, 1).Find(L.CheckString(2))

	elements := L.NewTable()
	selection.Each(func(i int, s *goquery.Selection) {
		pushSelection(L, s)
		elements.Append(L.Get(-1))
		L.Pop(1)
	})

	L.Push(elements)
	return 1
}

func (h *HTMLModule) htmlSelectOne(L *lua.LState) int {
	selection := checkSelection(L, 1).Find(L.CheckString(2)).First()
	if selection.Length() == 0 {
		L.Push(lua.LNil)
		return 1
	}

	pushSelection(L, selection)
	return 1
}

func (h *HTMLModule) htmlText(L *lua.LState) int {
	text := strings.Join(strings.Fields(checkSelection(L, 1).Text()), " ")
	L.Push(lua.LString(text))
	return 1
}

func (h *HTMLModule) htmlAttr(L *lua.LState) int {
	selection := checkSelection(L, 1)

	attrValue, exists := selection.Attr(L.CheckString(2))
	if !exists {
		L.Push(lua.LNil)
		return 1
	}

	L.Push(lua.LString(attrValue))
	return 1
}

func (h *HTMLModule) htmlHTML(L *lua.LState) int {
	htmlContent, err := checkSelection(L, 1).Html()
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(fmt.Sprintf("failed to get HTML: %s", err.Error())))
		return 2
	}

	L.Push(lua.LString(htmlContent))
	return 1
}
