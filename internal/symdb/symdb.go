// Package symdb stores the declarations of a translation unit in an SQLite
// database so they can be queried after the source is gone.
package symdb

import (
	"context"
	"database/sql"
	"io"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/andrewchambers/cdecl/emit"
	"github.com/andrewchambers/cdecl/layout"
	"github.com/andrewchambers/cdecl/parse"
)

const schema = `
CREATE TABLE IF NOT EXISTS typedefs (
	name TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	decl TEXT NOT NULL,
	file TEXT, line INTEGER
);
CREATE TABLE IF NOT EXISTS aggregates (
	id INTEGER PRIMARY KEY,
	kind TEXT NOT NULL,
	tag TEXT NOT NULL,
	anonymous INTEGER NOT NULL,
	size INTEGER, align INTEGER,
	pack INTEGER NOT NULL,
	underlying TEXT,
	file TEXT, line INTEGER,
	UNIQUE (kind, tag)
);
CREATE TABLE IF NOT EXISTS fields (
	aggregate_id INTEGER NOT NULL REFERENCES aggregates(id),
	idx INTEGER NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	bit_width INTEGER,
	byte_offset INTEGER, bit_offset INTEGER,
	PRIMARY KEY (aggregate_id, idx)
);
CREATE TABLE IF NOT EXISTS enumerators (
	aggregate_id INTEGER NOT NULL REFERENCES aggregates(id),
	idx INTEGER NOT NULL,
	name TEXT NOT NULL,
	value INTEGER NOT NULL,
	PRIMARY KEY (aggregate_id, idx)
);
CREATE TABLE IF NOT EXISTS declarations (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	sclass TEXT NOT NULL,
	type TEXT NOT NULL,
	decl TEXT NOT NULL,
	definition INTEGER NOT NULL,
	init TEXT,
	file TEXT, line INTEGER
);
CREATE TABLE IF NOT EXISTS pragmas (
	id INTEGER PRIMARY KEY,
	text TEXT NOT NULL,
	file TEXT, line INTEGER
);
`

type DB struct {
	db  *sql.DB
	Log logrus.FieldLogger
}

// Open opens or creates the database at path and makes sure the tables
// exist. ":memory:" gives a private in memory database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "creating tables in %s", path)
	}
	log := logrus.New()
	log.Out = io.Discard
	return &DB{db: db, Log: log}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// SQL exposes the underlying handle for queries.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Store writes everything unit declares in a single transaction. eng may be
// nil, in which case sizes and offsets are left NULL. An aggregate whose
// layout fails is stored without layout information.
func (d *DB) Store(ctx context.Context, unit *parse.TranslationUnit, eng *layout.Engine) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
		err = errors.WithStack(tx.Commit())
	}()

	s := &storer{ctx: ctx, tx: tx, eng: eng, log: d.Log}
	for _, ed := range unit.Decls {
		if ed.Pragma != nil {
			if err = s.pragma(ed.Pragma); err != nil {
				return err
			}
			continue
		}
		for _, def := range ed.Aggregates {
			if err = s.aggregate(def); err != nil {
				return err
			}
		}
		for _, decl := range ed.Decls {
			if decl.IsTypedef {
				err = s.typedef(decl)
			} else {
				err = s.declaration(decl)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

type storer struct {
	ctx context.Context
	tx  *sql.Tx
	eng *layout.Engine
	log logrus.FieldLogger
}

func (s *storer) exec(query string, args ...interface{}) (sql.Result, error) {
	res, err := s.tx.ExecContext(s.ctx, query, args...)
	return res, errors.Wrap(err, "symdb")
}

func (s *storer) pragma(pr *parse.Pragma) error {
	_, err := s.exec(`INSERT INTO pragmas (text, file, line) VALUES (?, ?, ?)`,
		pr.Text, pr.Pos.File, pr.Pos.Line)
	return err
}

func (s *storer) typedef(decl *parse.Declaration) error {
	_, err := s.exec(`INSERT OR REPLACE INTO typedefs (name, type, decl, file, line) VALUES (?, ?, ?, ?, ?)`,
		decl.Name, decl.Type.String(), emit.Render(decl.Name, decl.Type), decl.Pos.File, decl.Pos.Line)
	return err
}

func (s *storer) declaration(decl *parse.Declaration) error {
	kind := "variable"
	if parse.IsFunctionType(decl.Type) {
		kind = "function"
	}
	var init interface{}
	if decl.Init != "" {
		init = decl.Init
	}
	_, err := s.exec(`INSERT INTO declarations (name, kind, sclass, type, decl, definition, init, file, line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		decl.Name, kind, decl.SClass.String(), decl.Type.String(), emit.Render(decl.Name, decl.Type),
		decl.IsFunctionDefinition, init, decl.Pos.File, decl.Pos.Line)
	return err
}

func (s *storer) aggregate(def *parse.AggregateDef) error {
	var l *layout.AggregateLayout
	if s.eng != nil {
		var err error
		l, err = s.eng.LayoutDef(def)
		if err != nil {
			s.log.WithFields(logrus.Fields{"tag": def.Tag, "err": err}).Debug("storing aggregate without layout")
			l = nil
		}
	}

	var size, align, underlying interface{}
	if l != nil {
		size, align = l.Size, l.Align
		if l.Underlying != nil {
			underlying = l.Underlying.Name()
		}
	}
	res, err := s.exec(`INSERT OR IGNORE INTO aggregates (kind, tag, anonymous, size, align, pack, underlying, file, line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.Kind.String(), def.Tag, def.Anonymous, size, align, def.Pack, underlying, def.Pos.File, def.Pos.Line)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already stored by an earlier unit.
		return nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.WithStack(err)
	}

	for i, en := range def.Enumerators {
		_, err := s.exec(`INSERT INTO enumerators (aggregate_id, idx, name, value) VALUES (?, ?, ?, ?)`,
			id, i, en.Name, en.Value)
		if err != nil {
			return err
		}
	}
	for i, f := range def.Fields {
		var width, offset, bitOffset interface{}
		if f.IsBitfield {
			width = f.BitWidth
		}
		if l != nil {
			offset = l.Fields[i].Offset
			if f.IsBitfield {
				bitOffset = l.Fields[i].BitOffset
			}
		}
		_, err := s.exec(`INSERT INTO fields (aggregate_id, idx, name, type, bit_width, byte_offset, bit_offset)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, f.Name, f.Type.String(), width, offset, bitOffset)
		if err != nil {
			return err
		}
	}
	return nil
}
