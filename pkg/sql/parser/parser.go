package parser

import (
	"strconv"
	"strings"

	"github.com/bobboyms/kvsql/pkg/errors"
	"github.com/bobboyms/kvsql/pkg/types"
)

// Parser monta a AST a partir dos tokens do lexer.
//
// Dialeto: CREATE TABLE, INSERT INTO ... VALUES, SELECT * FROM, e os
// comandos de sessão BEGIN / COMMIT / ROLLBACK. Ponto e vírgula final é
// opcional; tokens depois dele são erro.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse converte um comando SQL em Statement.
func Parse(input string) (Statement, error) {
	tokens, err := NewLexer(input).Tokens()
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens}

	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	// Ponto e vírgula opcional no fim; nada além dele
	if p.peek().Kind == TokenSemicolon {
		p.next()
	}
	if tok := p.peek(); tok.Kind != TokenEOF {
		return nil, p.unexpected(tok)
	}
	return stmt, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	tok := p.peek()
	if tok.Kind != TokenKeyword {
		return nil, p.unexpected(tok)
	}
	switch tok.Text {
	case "CREATE":
		return p.parseCreateTable()
	case "INSERT":
		return p.parseInsert()
	case "SELECT":
		return p.parseSelect()
	case "BEGIN":
		p.next()
		return Begin{}, nil
	case "COMMIT":
		p.next()
		return Commit{}, nil
	case "ROLLBACK":
		p.next()
		return Rollback{}, nil
	}
	return nil, p.unexpected(tok)
}

// parseCreateTable: CREATE TABLE nome ( coluna tipo [constraints], ... )
func (p *Parser) parseCreateTable() (Statement, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.nextIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKind(TokenOpenParen); err != nil {
		return nil, err
	}

	var columns []ColumnSpec
	for {
		col, err := p.parseColumnSpec()
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)

		tok := p.next()
		if tok.Kind == TokenCloseParen {
			break
		}
		if tok.Kind != TokenComma {
			return nil, p.unexpected(tok)
		}
	}

	return CreateTable{Name: name, Columns: columns}, nil
}

func (p *Parser) parseColumnSpec() (ColumnSpec, error) {
	name, err := p.nextIdent()
	if err != nil {
		return ColumnSpec{}, err
	}

	dt, err := p.parseDataType()
	if err != nil {
		return ColumnSpec{}, err
	}

	col := ColumnSpec{Name: name, Type: dt}
	for {
		tok := p.peek()
		if tok.Kind != TokenKeyword {
			return col, nil
		}
		switch tok.Text {
		case "PRIMARY":
			p.next()
			if err := p.expectKeyword("KEY"); err != nil {
				return ColumnSpec{}, err
			}
			col.PrimaryKey = true
		case "NULL":
			p.next()
			nullable := true
			col.Nullable = &nullable
		case "NOT":
			p.next()
			if err := p.expectKeyword("NULL"); err != nil {
				return ColumnSpec{}, err
			}
			nullable := false
			col.Nullable = &nullable
		case "DEFAULT":
			p.next()
			val, err := p.parseLiteral()
			if err != nil {
				return ColumnSpec{}, err
			}
			col.HasDefault = true
			col.Default = val
		default:
			return col, nil
		}
	}
}

func (p *Parser) parseDataType() (types.DataType, error) {
	tok := p.next()
	if tok.Kind != TokenKeyword {
		return 0, p.unexpected(tok)
	}
	switch tok.Text {
	case "INT", "INTEGER":
		return types.TypeInt, nil
	case "FLOAT", "DOUBLE":
		return types.TypeFloat, nil
	case "BOOL", "BOOLEAN":
		return types.TypeBoolean, nil
	case "STRING", "TEXT", "VARCHAR":
		return types.TypeVarchar, nil
	}
	return 0, p.unexpected(tok)
}

// parseInsert: INSERT INTO tabela [(colunas)] VALUES (v, ...) [, (v, ...)]*
func (p *Parser) parseInsert() (Statement, error) {
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.nextIdent()
	if err != nil {
		return nil, err
	}

	var columns []string
	if p.peek().Kind == TokenOpenParen {
		p.next()
		for {
			col, err := p.nextIdent()
			if err != nil {
				return nil, err
			}
			columns = append(columns, col)

			tok := p.next()
			if tok.Kind == TokenCloseParen {
				break
			}
			if tok.Kind != TokenComma {
				return nil, p.unexpected(tok)
			}
		}
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}

	var rows [][]any
	for {
		if err := p.expectKind(TokenOpenParen); err != nil {
			return nil, err
		}
		var row []any
		for {
			val, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			row = append(row, val)

			tok := p.next()
			if tok.Kind == TokenCloseParen {
				break
			}
			if tok.Kind != TokenComma {
				return nil, p.unexpected(tok)
			}
		}
		rows = append(rows, row)

		if p.peek().Kind != TokenComma {
			break
		}
		p.next()
	}

	return Insert{Table: table, Columns: columns, Rows: rows}, nil
}

// parseSelect: SELECT * FROM tabela
func (p *Parser) parseSelect() (Statement, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	if err := p.expectKind(TokenAsterisk); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.nextIdent()
	if err != nil {
		return nil, err
	}
	return Select{Table: table}, nil
}

// parseLiteral: NULL, TRUE, FALSE, número ou string.
// Números sem ponto viram int64; com ponto, float64.
func (p *Parser) parseLiteral() (any, error) {
	tok := p.next()
	switch tok.Kind {
	case TokenKeyword:
		switch tok.Text {
		case "NULL":
			return nil, nil
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
	case TokenNumber:
		if strings.Contains(tok.Text, ".") {
			f, err := strconv.ParseFloat(tok.Text, 64)
			if err != nil {
				return nil, &errors.ParseError{Pos: tok.Pos, Msg: "invalid float literal " + tok.Text}
			}
			return f, nil
		}
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, &errors.ParseError{Pos: tok.Pos, Msg: "invalid integer literal " + tok.Text}
		}
		return n, nil
	case TokenString:
		return tok.Text, nil
	}
	return nil, p.unexpected(tok)
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: TokenEOF, Pos: p.pos}
	}
	return p.tokens[p.pos]
}

func (p *Parser) next() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) nextIdent() (string, error) {
	tok := p.next()
	if tok.Kind != TokenIdent {
		return "", p.unexpected(tok)
	}
	return tok.Text, nil
}

func (p *Parser) expectKeyword(kw string) error {
	tok := p.next()
	if tok.Kind != TokenKeyword || tok.Text != kw {
		return p.unexpected(tok)
	}
	return nil
}

func (p *Parser) expectKind(kind TokenKind) error {
	tok := p.next()
	if tok.Kind != kind {
		return p.unexpected(tok)
	}
	return nil
}

func (p *Parser) unexpected(tok Token) error {
	return &errors.ParseError{Pos: tok.Pos, Msg: "unexpected " + tok.String()}
}
