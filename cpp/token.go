package cpp

import (
	"fmt"
)

// The list of tokens.
const (

	// Single char tokens are themselves.
	ADD       = '+'
	SUB       = '-'
	MUL       = '*'
	QUO       = '/'
	REM       = '%'
	AND       = '&'
	OR        = '|'
	XOR       = '^'
	QUESTION  = '?'
	HASH      = '#'
	LSS       = '<'
	GTR       = '>'
	ASSIGN    = '='
	NOT       = '!'
	BNOT      = '~'
	LPAREN    = '('
	LBRACK    = '['
	LBRACE    = '{'
	COMMA     = ','
	PERIOD    = '.'
	RPAREN    = ')'
	RBRACK    = ']'
	RBRACE    = '}'
	SEMICOLON = ';'
	COLON     = ':'

	ERROR = 10000 + iota
	EOF
	DIRECTIVE     // #pragma #line etc
	END_DIRECTIVE // New line at the end of a directive
	// Directives that survive filtering.
	PRAGMA_PACK // #pragma pack(...), Val holds the arguments
	PRAGMA      // any other #pragma, Val holds the text
	// Identifiers and basic type literals
	// (these tokens stand for classes of literals)
	IDENT          // main
	INT_CONSTANT   // 12345
	FLOAT_CONSTANT // 123.45
	CHAR_CONSTANT  // 'a'
	STRING         // "abc"

	SHL        // <<
	SHR        // >>
	ADD_ASSIGN // +=
	SUB_ASSIGN // -=
	MUL_ASSIGN // *=
	QUO_ASSIGN // /=
	REM_ASSIGN // %=
	AND_ASSIGN // &=
	OR_ASSIGN  // |=
	XOR_ASSIGN // ^=
	SHL_ASSIGN // <<=
	SHR_ASSIGN // >>=
	LAND       // &&
	LOR        // ||
	ARROW      // ->
	INC        // ++
	DEC        // --
	EQL        // ==
	NEQ        // !=
	LEQ        // <=
	GEQ        // >=
	ELLIPSIS   // ...

	// Keywords
	AUTO
	REGISTER
	EXTERN
	STATIC
	TYPEDEF
	INLINE
	CONST
	VOLATILE
	RESTRICT
	VOID
	BOOL
	CHAR
	SHORT
	INT
	LONG
	FLOAT
	DOUBLE
	SIGNED
	UNSIGNED
	STRUCT
	UNION
	ENUM
	SIZEOF
	BREAK
	CASE
	CONTINUE
	DEFAULT
	DO
	ELSE
	FOR
	GOTO
	IF
	RETURN
	SWITCH
	WHILE
)

var tokenKindToStr = [...]string{
	HASH:           "#",
	ERROR:          "error",
	EOF:            "EOF",
	DIRECTIVE:      "cppdirective",
	END_DIRECTIVE:  "enddirective",
	PRAGMA_PACK:    "pragmapack",
	PRAGMA:         "pragma",
	CHAR_CONSTANT:  "charconst",
	INT_CONSTANT:   "intconst",
	FLOAT_CONSTANT: "floatconst",
	IDENT:          "ident",
	STRING:         "string",
	ADD:            "'+'",
	SUB:            "'-'",
	MUL:            "'*'",
	QUO:            "'/'",
	REM:            "'%'",
	AND:            "'&'",
	OR:             "'|'",
	XOR:            "'^'",
	SHL:            "'<<'",
	SHR:            "'>>'",
	ADD_ASSIGN:     "'+='",
	SUB_ASSIGN:     "'-='",
	MUL_ASSIGN:     "'*='",
	QUO_ASSIGN:     "'/='",
	REM_ASSIGN:     "'%='",
	AND_ASSIGN:     "'&='",
	OR_ASSIGN:      "'|='",
	XOR_ASSIGN:     "'^='",
	SHL_ASSIGN:     "'<<='",
	SHR_ASSIGN:     "'>>='",
	LAND:           "'&&'",
	LOR:            "'||'",
	ARROW:          "'->'",
	INC:            "'++'",
	DEC:            "'--'",
	EQL:            "'=='",
	LSS:            "'<'",
	GTR:            "'>'",
	ASSIGN:         "'='",
	NOT:            "'!'",
	BNOT:           "'~'",
	NEQ:            "'!='",
	LEQ:            "'<='",
	GEQ:            "'>='",
	ELLIPSIS:       "'...'",
	LPAREN:         "'('",
	LBRACK:         "'['",
	LBRACE:         "'{'",
	COMMA:          "','",
	PERIOD:         "'.'",
	RPAREN:         "')'",
	RBRACK:         "']'",
	RBRACE:         "'}'",
	SEMICOLON:      "';'",
	COLON:          "':'",
	QUESTION:       "'?'",
	AUTO:           "auto",
	REGISTER:       "register",
	EXTERN:         "extern",
	STATIC:         "static",
	TYPEDEF:        "typedef",
	INLINE:         "inline",
	CONST:          "const",
	VOLATILE:       "volatile",
	RESTRICT:       "restrict",
	VOID:           "void",
	BOOL:           "_Bool",
	CHAR:           "char",
	SHORT:          "short",
	INT:            "int",
	LONG:           "long",
	FLOAT:          "float",
	DOUBLE:         "double",
	SIGNED:         "signed",
	UNSIGNED:       "unsigned",
	STRUCT:         "struct",
	UNION:          "union",
	ENUM:           "enum",
	SIZEOF:         "sizeof",
	BREAK:          "break",
	CASE:           "case",
	CONTINUE:       "continue",
	DEFAULT:        "default",
	DO:             "do",
	ELSE:           "else",
	FOR:            "for",
	GOTO:           "goto",
	IF:             "if",
	RETURN:         "return",
	SWITCH:         "switch",
	WHILE:          "while",
}

var keywordLUT = map[string]TokenKind{
	"auto":         AUTO,
	"register":     REGISTER,
	"extern":       EXTERN,
	"static":       STATIC,
	"typedef":      TYPEDEF,
	"inline":       INLINE,
	"__inline":     INLINE,
	"__inline__":   INLINE,
	"const":        CONST,
	"__const":      CONST,
	"volatile":     VOLATILE,
	"__volatile__": VOLATILE,
	"restrict":     RESTRICT,
	"__restrict":   RESTRICT,
	"__restrict__": RESTRICT,
	"void":         VOID,
	"_Bool":        BOOL,
	"char":         CHAR,
	"short":        SHORT,
	"int":          INT,
	"long":         LONG,
	"float":        FLOAT,
	"double":       DOUBLE,
	"signed":       SIGNED,
	"__signed__":   SIGNED,
	"unsigned":     UNSIGNED,
	"struct":       STRUCT,
	"union":        UNION,
	"enum":         ENUM,
	"sizeof":       SIZEOF,
	"break":        BREAK,
	"case":         CASE,
	"continue":     CONTINUE,
	"default":      DEFAULT,
	"do":           DO,
	"else":         ELSE,
	"for":          FOR,
	"goto":         GOTO,
	"if":           IF,
	"return":       RETURN,
	"switch":       SWITCH,
	"while":        WHILE,
}

type TokenKind uint32

func (tk TokenKind) String() string {
	if uint32(tk) >= uint32(len(tokenKindToStr)) {
		return "Unknown"
	}
	ret := tokenKindToStr[tk]
	if ret == "" {
		return "Unknown"
	}
	return ret
}

// IsKeyword reports whether s is spelled like a C keyword.
func IsKeyword(s string) bool {
	_, ok := keywordLUT[s]
	return ok
}

type FilePos struct {
	File string
	Line int
	Col  int
	// Byte offset from the start of the file.
	Offset int
}

func (pos FilePos) String() string {
	return fmt.Sprintf("%s:%d:%d", pos.File, pos.Line, pos.Col)
}

//Token represents a grouping of characters
//that provide semantic meaning in a C program.
type Token struct {
	Kind TokenKind
	Val  string
	Pos  FilePos
}

func (t *Token) copy() *Token {
	ret := *t
	return &ret
}

func (t Token) String() string {
	return fmt.Sprintf("%s at %s", t.Val, t.Pos)
}
