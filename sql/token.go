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

// Package sql is the streaming-SQL front end (spec §6): it lexes and
// parses the CREATE STREAM / SELECT ... FROM ... WINDOW ... / INSERT INTO
// surface into an appdef.Application, the same AST a programmatic
// embedder would build directly. Clause keywords and punctuation drive
// the parse; the scalar/boolean expression text inside a clause (SELECT
// fields, WHERE/HAVING, ORDER BY keys) is reassembled from its tokens and
// compiled at query-compile time, WHERE by query.compileCondition and the
// others through expr.Parse in query.compileSelector, so this package
// never builds its own expression AST.
package sql

import "strings"

// TokenType names one lexical category, following the teacher's
// rsql/token.go string-constant style.
type TokenType string

const (
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	IDENT  TokenType = "IDENT"
	NUMBER TokenType = "NUMBER"
	STRING TokenType = "STRING"
	ENVVAR TokenType = "ENVVAR"

	COMMA     TokenType = ","
	SEMICOLON TokenType = ";"
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	DOT       TokenType = "."
	OPERATOR  TokenType = "OPERATOR" // =, ==, !=, <, <=, >, >=, +, -, *, /, %

	CREATE TokenType = "CREATE"
	STREAM TokenType = "STREAM"
	TABLE  TokenType = "TABLE"
	SELECT TokenType = "SELECT"
	FROM   TokenType = "FROM"
	WHERE  TokenType = "WHERE"
	WINDOW TokenType = "WINDOW"
	GROUP  TokenType = "GROUP"
	BY     TokenType = "BY"
	HAVING TokenType = "HAVING"
	ORDER  TokenType = "ORDER"
	ASC    TokenType = "ASC"
	DESC   TokenType = "DESC"
	LIMIT  TokenType = "LIMIT"
	OFFSET TokenType = "OFFSET"
	INSERT TokenType = "INSERT"
	INTO   TokenType = "INTO"
	JOIN   TokenType = "JOIN"
	LEFT   TokenType = "LEFT"
	RIGHT  TokenType = "RIGHT"
	FULL   TokenType = "FULL"
	INNER  TokenType = "INNER"
	OUTER  TokenType = "OUTER"
	ON     TokenType = "ON"
	AS     TokenType = "AS"

	TUMBLING TokenType = "TUMBLING"
	SLIDING  TokenType = "SLIDING"
	LENGTH   TokenType = "LENGTH"
	SESSION  TokenType = "SESSION"
	INTERVAL TokenType = "INTERVAL"
)

// Token is one lexical unit: its type, literal text, and source position
// (1-based) so parse errors can report line/column the way spec §6
// requires for `${VAR}` expansion failures.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Col     int
}

var keywords = map[string]TokenType{
	"CREATE":     CREATE,
	"STREAM":     STREAM,
	"TABLE":      TABLE,
	"SELECT":     SELECT,
	"FROM":       FROM,
	"WHERE":      WHERE,
	"WINDOW":     WINDOW,
	"GROUP":      GROUP,
	"BY":         BY,
	"HAVING":     HAVING,
	"ORDER":      ORDER,
	"ASC":        ASC,
	"DESC":       DESC,
	"LIMIT":      LIMIT,
	"OFFSET":     OFFSET,
	"INSERT":     INSERT,
	"INTO":       INTO,
	"JOIN":       JOIN,
	"LEFT":       LEFT,
	"RIGHT":      RIGHT,
	"FULL":       FULL,
	"INNER":      INNER,
	"OUTER":      OUTER,
	"ON":         ON,
	"AS":         AS,
	"TUMBLING":   TUMBLING,
	"SLIDING":    SLIDING,
	"LENGTH":     LENGTH,
	"SESSION":    SESSION,
	"INTERVAL":   INTERVAL,
}

// lookupIdent classifies a bare word as a keyword or a plain identifier,
// mirroring rsql.LookupIdent.
func lookupIdent(ident string) TokenType {
	if tok, ok := keywords[strings.ToUpper(ident)]; ok {
		return tok
	}
	return IDENT
}
