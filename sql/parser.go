/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sql

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/eventflux/eventflux/appdef"
	"github.com/eventflux/eventflux/attrvalue"
)

// Parse lexes and parses a `;`-separated script of CREATE STREAM / CREATE
// TABLE / SELECT / INSERT INTO ... SELECT statements into an
// appdef.Application (spec §6). name becomes the Application's Name.
func Parse(name, src string) (*appdef.Application, error) {
	p := &parser{l: newLexer(src)}
	p.nextToken()
	p.nextToken()
	app := appdef.NewApplication(name)
	queryN := 0

	for p.cur.Type != EOF {
		if p.cur.Type == SEMICOLON {
			p.nextToken()
			continue
		}
		if err := p.err; err != nil {
			return nil, err
		}
		switch p.cur.Type {
		case CREATE:
			if err := p.parseCreate(app); err != nil {
				return nil, err
			}
		case INSERT:
			queryN++
			q, err := p.parseInsertSelect(app, queryN)
			if err != nil {
				return nil, err
			}
			app.AddQuery(q)
		case SELECT:
			queryN++
			q, err := p.parseSelect(app, fmt.Sprintf("query_%d", queryN), appdef.OutputAction{Kind: appdef.ActionReturn})
			if err != nil {
				return nil, err
			}
			app.AddQuery(q)
		default:
			return nil, p.errorf("unexpected token %q", p.cur.Literal)
		}
		if p.cur.Type == SEMICOLON {
			p.nextToken()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return app, app.Validate()
}

type parser struct {
	l    *lexer
	cur  Token
	peek Token
	err  error
}

func (p *parser) nextToken() {
	p.cur = p.peek
	tok := p.l.nextToken()
	if tok.Type == ENVVAR {
		val, ok := os.LookupEnv(tok.Literal)
		if !ok {
			p.err = fmt.Errorf("sql:%d:%d: undefined variable ${%s}", tok.Line, tok.Col, tok.Literal)
		}
		tok.Type, tok.Literal = STRING, val
	}
	p.peek = tok
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("sql:%d:%d: %s", p.cur.Line, p.cur.Col, fmt.Sprintf(format, args...))
}

func (p *parser) expect(t TokenType) error {
	if p.cur.Type != t {
		return p.errorf("expected %s, got %q", t, p.cur.Literal)
	}
	return nil
}

// --- CREATE STREAM / CREATE TABLE ---

func (p *parser) parseCreate(app *appdef.Application) error {
	p.nextToken() // past CREATE
	switch p.cur.Type {
	case STREAM:
		def, err := p.parseColumnList()
		if err != nil {
			return err
		}
		return app.AddStream(def)
	case TABLE:
		def, err := p.parseColumnList()
		if err != nil {
			return err
		}
		return app.AddTable(&appdef.TableDefinition{Id: def.Id, Attributes: def.Attributes, Annotations: def.Annotations})
	default:
		return p.errorf("expected STREAM or TABLE after CREATE")
	}
}

// parseColumnList parses `<name> (col type, col type, ...)`, shared by
// CREATE STREAM and CREATE TABLE (spec §6's column-type grammar is the
// same for both).
func (p *parser) parseColumnList() (*appdef.StreamDefinition, error) {
	p.nextToken() // past STREAM/TABLE
	if p.cur.Type != IDENT {
		return nil, p.errorf("expected identifier, got %q", p.cur.Literal)
	}
	name := p.cur.Literal
	p.nextToken()
	if err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	p.nextToken()

	def := appdef.NewStreamDefinition(name)
	for p.cur.Type != RPAREN {
		if p.cur.Type != IDENT {
			return nil, p.errorf("expected column name, got %q", p.cur.Literal)
		}
		colName := p.cur.Literal
		p.nextToken()
		typ, err := p.parseColumnType()
		if err != nil {
			return nil, err
		}
		def.WithAttribute(colName, typ)
		if p.cur.Type == COMMA {
			p.nextToken()
		}
	}
	p.nextToken() // past RPAREN
	return def, nil
}

// parseColumnType consumes one or two identifier tokens naming a column
// type (spec §6: "DOUBLE PRECISION" is the two-word form of DOUBLE).
func (p *parser) parseColumnType() (attrvalue.Type, error) {
	if p.cur.Type != IDENT {
		return attrvalue.TypeNull, p.errorf("expected type name, got %q", p.cur.Literal)
	}
	word := strings.ToUpper(p.cur.Literal)
	p.nextToken()
	if word == "DOUBLE" && p.cur.Type == IDENT && strings.ToUpper(p.cur.Literal) == "PRECISION" {
		p.nextToken()
		return attrvalue.TypeFloat64, nil
	}
	switch word {
	case "VARCHAR", "STRING":
		return attrvalue.TypeString, nil
	case "INT", "INTEGER":
		return attrvalue.TypeInt32, nil
	case "BIGINT", "LONG":
		return attrvalue.TypeInt64, nil
	case "FLOAT":
		return attrvalue.TypeFloat32, nil
	case "DOUBLE":
		return attrvalue.TypeFloat64, nil
	case "BOOLEAN":
		return attrvalue.TypeBool, nil
	case "TIMESTAMP", "DATE":
		return attrvalue.TypeInt64, nil
	case "DECIMAL":
		return attrvalue.TypeFloat64, nil
	default:
		return attrvalue.TypeNull, fmt.Errorf("sql: unsupported column type %q", word)
	}
}

// --- INSERT INTO ... SELECT ---

func (p *parser) parseInsertSelect(app *appdef.Application, n int) (*appdef.Query, error) {
	p.nextToken() // past INSERT
	if err := p.expect(INTO); err != nil {
		return nil, err
	}
	p.nextToken()
	if p.cur.Type != IDENT {
		return nil, p.errorf("expected target name, got %q", p.cur.Literal)
	}
	target := p.cur.Literal
	p.nextToken()
	if err := p.expect(SELECT); err != nil {
		return nil, err
	}

	action := appdef.OutputAction{Kind: appdef.ActionInsertStream, Target: target}
	if _, ok := app.Tables[target]; ok {
		action.Kind = appdef.ActionInsertTable
	}
	return p.parseSelect(app, fmt.Sprintf("insert_into_%s_%d", target, n), action)
}

// --- SELECT ---

func (p *parser) parseSelect(app *appdef.Application, queryName string, action appdef.OutputAction) (*appdef.Query, error) {
	p.nextToken() // past SELECT

	fields, err := p.parseSelectFields()
	if err != nil {
		return nil, err
	}
	if err := p.expect(FROM); err != nil {
		return nil, err
	}
	p.nextToken()

	input, err := p.parseFrom()
	if err != nil {
		return nil, err
	}

	q := &appdef.Query{Name: queryName, Input: *input, Selector: appdef.Selector{Fields: fields}, Output: action}

	if p.cur.Type == WINDOW {
		win, err := p.parseWindowSpec()
		if err != nil {
			return nil, err
		}
		if q.Input.Kind == appdef.InputSingle {
			q.Input.Window = win
		} else {
			q.Input.LeftWindow = win
		}
	}
	if p.cur.Type == WHERE {
		p.nextToken()
		q.Filter = p.collectExprText(map[TokenType]bool{WINDOW: true, GROUP: true, HAVING: true, ORDER: true, LIMIT: true, OFFSET: true})
	}
	if p.cur.Type == GROUP {
		p.nextToken()
		if err := p.expect(BY); err != nil {
			return nil, err
		}
		p.nextToken()
		q.Selector.GroupBy = p.parseIdentList()
	}
	if p.cur.Type == HAVING {
		p.nextToken()
		q.Selector.Having = p.collectExprText(map[TokenType]bool{ORDER: true, LIMIT: true, OFFSET: true})
	}
	if p.cur.Type == ORDER {
		p.nextToken()
		if err := p.expect(BY); err != nil {
			return nil, err
		}
		p.nextToken()
		q.Selector.OrderBy = p.parseOrderByList()
	}
	if p.cur.Type == LIMIT {
		p.nextToken()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		q.Selector.Limit = n
	}
	if p.cur.Type == OFFSET {
		p.nextToken()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		q.Selector.Offset = n
	}
	return q, nil
}

func (p *parser) parseIntLiteral() (int, error) {
	if p.cur.Type != NUMBER {
		return 0, p.errorf("expected number, got %q", p.cur.Literal)
	}
	n, err := strconv.Atoi(p.cur.Literal)
	if err != nil {
		return 0, p.errorf("invalid integer %q", p.cur.Literal)
	}
	p.nextToken()
	return n, nil
}

// parseSelectFields splits the field list on top-level commas, each field
// an expression (reassembled from its tokens for expr.Parse) with an optional AS
// alias.
func (p *parser) parseSelectFields() ([]appdef.SelectField, error) {
	var fields []appdef.SelectField
	for {
		expr := p.collectExprText(map[TokenType]bool{FROM: true, AS: true, COMMA: true})
		if expr == "" {
			return nil, p.errorf("expected select expression")
		}
		alias := ""
		if p.cur.Type == AS {
			p.nextToken()
			if p.cur.Type != IDENT {
				return nil, p.errorf("expected alias after AS, got %q", p.cur.Literal)
			}
			alias = p.cur.Literal
			p.nextToken()
		}
		fields = append(fields, appdef.SelectField{Expr: expr, Alias: alias})
		if p.cur.Type == COMMA {
			p.nextToken()
			continue
		}
		break
	}
	return fields, nil
}

func (p *parser) parseIdentList() []string {
	var out []string
	for {
		out = append(out, p.collectExprText(map[TokenType]bool{COMMA: true, HAVING: true, ORDER: true, LIMIT: true, OFFSET: true}))
		if p.cur.Type == COMMA {
			p.nextToken()
			continue
		}
		break
	}
	return out
}

func (p *parser) parseOrderByList() []appdef.OrderByItem {
	var out []appdef.OrderByItem
	for {
		expr := p.collectExprText(map[TokenType]bool{COMMA: true, ASC: true, DESC: true, LIMIT: true, OFFSET: true})
		desc := false
		if p.cur.Type == ASC {
			p.nextToken()
		} else if p.cur.Type == DESC {
			desc = true
			p.nextToken()
		}
		out = append(out, appdef.OrderByItem{Expr: expr, Desc: desc})
		if p.cur.Type == COMMA {
			p.nextToken()
			continue
		}
		break
	}
	return out
}

// --- FROM / JOIN ---

func (p *parser) parseFrom() (*appdef.InputSpec, error) {
	if p.cur.Type != IDENT {
		return nil, p.errorf("expected stream name, got %q", p.cur.Literal)
	}
	left := p.cur.Literal
	p.nextToken()
	p.skipAlias()

	kind := appdef.JoinInner
	switch p.cur.Type {
	case LEFT:
		kind = appdef.JoinLeftOuter
		p.nextToken()
		if p.cur.Type == OUTER {
			p.nextToken()
		}
	case RIGHT:
		kind = appdef.JoinRightOuter
		p.nextToken()
		if p.cur.Type == OUTER {
			p.nextToken()
		}
	case FULL:
		kind = appdef.JoinFullOuter
		p.nextToken()
		if p.cur.Type == OUTER {
			p.nextToken()
		}
	case INNER:
		p.nextToken()
	}

	if p.cur.Type != JOIN {
		return &appdef.InputSpec{Kind: appdef.InputSingle, Stream: left}, nil
	}
	p.nextToken()
	if p.cur.Type != IDENT {
		return nil, p.errorf("expected stream name after JOIN, got %q", p.cur.Literal)
	}
	right := p.cur.Literal
	p.nextToken()
	p.skipAlias()
	if err := p.expect(ON); err != nil {
		return nil, err
	}
	p.nextToken()
	onExpr := p.collectExprText(map[TokenType]bool{WINDOW: true, WHERE: true, GROUP: true, HAVING: true, ORDER: true, LIMIT: true, OFFSET: true})
	return &appdef.InputSpec{Kind: appdef.InputJoin, LeftStream: left, RightStream: right, JoinKind: kind, OnExpr: onExpr}, nil
}

// skipAlias consumes an optional `[AS] alias` naming the preceding stream
// reference. Aliases are accepted for SQL-surface familiarity but not
// resolved: ON/WHERE/select expressions must reference bare column names,
// since query.Compile's row shape has no notion of a stream prefix.
func (p *parser) skipAlias() {
	if p.cur.Type == AS {
		p.nextToken()
		if p.cur.Type == IDENT {
			p.nextToken()
		}
		return
	}
	if p.cur.Type == IDENT {
		p.nextToken()
	}
}

// --- WINDOW ---

func (p *parser) parseWindowSpec() (*appdef.WindowDefinition, error) {
	p.nextToken() // past WINDOW
	switch p.cur.Type {
	case TUMBLING:
		p.nextToken()
		ms, err := p.parseIntervalArgs(1)
		if err != nil {
			return nil, err
		}
		return &appdef.WindowDefinition{Kind: appdef.WindowTimeBatch, Duration: ms[0]}, nil
	case SLIDING:
		p.nextToken()
		ms, err := p.parseIntervalArgs(2)
		if err != nil {
			return nil, err
		}
		// The slide interval (ms[1]) is accepted for SQL-surface
		// compatibility; the time window (timeWindow) already slides
		// continuously, so only the retention span (ms[0]) is wired.
		return &appdef.WindowDefinition{Kind: appdef.WindowTime, Duration: ms[0]}, nil
	case LENGTH:
		p.nextToken()
		if err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		p.nextToken()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		p.nextToken()
		return &appdef.WindowDefinition{Kind: appdef.WindowLength, Length: n}, nil
	case SESSION:
		p.nextToken()
		ms, err := p.parseIntervalArgs(1)
		if err != nil {
			return nil, err
		}
		return &appdef.WindowDefinition{Kind: appdef.WindowSession, Duration: ms[0]}, nil
	default:
		return nil, p.errorf("expected TUMBLING, SLIDING, LENGTH or SESSION, got %q", p.cur.Literal)
	}
}

// parseIntervalArgs parses `(INTERVAL 'n' unit, INTERVAL 'n' unit, ...)`,
// want arguments long, returning each as milliseconds.
func (p *parser) parseIntervalArgs(want int) ([]int64, error) {
	if err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	p.nextToken()
	var out []int64
	for i := 0; i < want; i++ {
		ms, err := p.parseIntervalArg()
		if err != nil {
			return nil, err
		}
		out = append(out, ms)
		if i < want-1 {
			if err := p.expect(COMMA); err != nil {
				return nil, err
			}
			p.nextToken()
		}
	}
	if err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	p.nextToken()
	return out, nil
}

// parseIntervalArg parses `INTERVAL 'n' unit` or a bare number (bare
// numbers are milliseconds, spec §6).
func (p *parser) parseIntervalArg() (int64, error) {
	if p.cur.Type == NUMBER {
		n, err := strconv.ParseInt(p.cur.Literal, 10, 64)
		if err != nil {
			return 0, p.errorf("invalid interval %q", p.cur.Literal)
		}
		p.nextToken()
		return n, nil
	}
	if err := p.expect(INTERVAL); err != nil {
		return 0, err
	}
	p.nextToken()
	if p.cur.Type != NUMBER && p.cur.Type != STRING {
		return 0, p.errorf("expected interval magnitude, got %q", p.cur.Literal)
	}
	n, err := strconv.ParseInt(p.cur.Literal, 10, 64)
	if err != nil {
		return 0, p.errorf("invalid interval magnitude %q", p.cur.Literal)
	}
	p.nextToken()
	unit := "MILLISECOND"
	if p.cur.Type == IDENT {
		unit = strings.ToUpper(p.cur.Literal)
		p.nextToken()
	}
	return n * unitMillis(unit), nil
}

func unitMillis(unit string) int64 {
	unit = strings.TrimSuffix(unit, "S")
	switch unit {
	case "MILLISECOND":
		return 1
	case "SECOND":
		return 1000
	case "MINUTE":
		return 60 * 1000
	case "HOUR":
		return 60 * 60 * 1000
	default:
		return 1
	}
}

// --- raw expression text capture ---

// collectExprText accumulates token literals until a token in stop is
// seen at paren depth 0 (or SEMICOLON/EOF), leaving cur positioned on the
// stopping token. The joined text is re-lexed independently by
// expr.Parse, so only readable reconstruction (not exact source bytes)
// is required.
func (p *parser) collectExprText(stop map[TokenType]bool) string {
	var b strings.Builder
	depth := 0
	var prevType TokenType
	first := true
	for {
		if p.cur.Type == EOF || p.cur.Type == SEMICOLON {
			break
		}
		if depth == 0 && stop[p.cur.Type] {
			break
		}
		if p.cur.Type == LPAREN {
			depth++
		} else if p.cur.Type == RPAREN {
			if depth == 0 {
				break
			}
			depth--
		}
		lit := p.cur.Literal
		if p.cur.Type == STRING {
			lit = "\"" + strings.ReplaceAll(lit, "\"", "\\\"") + "\""
		}
		if !first && needsSpace(prevType, p.cur.Type) {
			b.WriteByte(' ')
		}
		b.WriteString(lit)
		first = false
		prevType = p.cur.Type
		p.nextToken()
	}
	return b.String()
}

// needsSpace keeps `.`, `(` and `)` tight against their neighbor the way
// a human would write `a.b`, `f(x)`, avoiding `a . b` or `sum (x)`.
func needsSpace(prev, next TokenType) bool {
	if prev == DOT || next == DOT || prev == LPAREN || next == LPAREN || next == RPAREN || next == COMMA {
		return false
	}
	return true
}
