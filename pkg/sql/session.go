package sql

import (
	"github.com/google/uuid"

	"github.com/bobboyms/kvsql/pkg/errors"
	"github.com/bobboyms/kvsql/pkg/sql/parser"
)

// Session executa comandos SQL de um cliente.
//
// Sem BEGIN explícito, cada comando roda na própria transação:
// begin → execute → commit, com rollback em qualquer erro. Depois de um
// BEGIN, os comandos seguintes compartilham a transação aberta até o
// COMMIT ou ROLLBACK.
type Session struct {
	ID     string
	engine Engine
	txn    Transaction // transação explícita aberta, ou nil
}

// NewSession cria uma sessão sobre o engine.
func NewSession(engine Engine) *Session {
	return &Session{
		ID:     uuid.NewString(),
		engine: engine,
	}
}

// Execute parseia e roda um comando SQL.
func (s *Session) Execute(sqlText string) (ResultSet, error) {
	stmt, err := parser.Parse(sqlText)
	if err != nil {
		return nil, err
	}

	switch stmt.(type) {
	case parser.Begin:
		if s.txn != nil {
			return nil, errors.Internalf("transaction already open in this session")
		}
		txn, err := s.engine.Begin()
		if err != nil {
			return nil, err
		}
		s.txn = txn
		return TxnResult{Action: "BEGIN"}, nil

	case parser.Commit:
		if s.txn == nil {
			return nil, errors.Internalf("no transaction open in this session")
		}
		err := s.txn.Commit()
		s.txn = nil
		if err != nil {
			return nil, err
		}
		return TxnResult{Action: "COMMIT"}, nil

	case parser.Rollback:
		if s.txn == nil {
			return nil, errors.Internalf("no transaction open in this session")
		}
		err := s.txn.Rollback()
		s.txn = nil
		if err != nil {
			return nil, err
		}
		return TxnResult{Action: "ROLLBACK"}, nil
	}

	plan, err := BuildPlan(stmt)
	if err != nil {
		return nil, err
	}

	// Dentro de uma transação explícita: executa sem commitar
	if s.txn != nil {
		return plan.Execute(s.txn)
	}

	// Auto-commit: um comando, uma transação
	txn, err := s.engine.Begin()
	if err != nil {
		return nil, err
	}
	result, err := plan.Execute(txn)
	if err != nil {
		txn.Rollback()
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// Close desfaz a transação explícita pendente, se houver.
func (s *Session) Close() error {
	if s.txn != nil {
		err := s.txn.Rollback()
		s.txn = nil
		return err
	}
	return nil
}
