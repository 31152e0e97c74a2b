package patterntext

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

type query struct {
	Matches []*matchClause `@@+`
	Where   []*condition   `( "WHERE" @@ ( "AND" @@ )* )?`
	Return  *returnClause  `@@?`
}

type matchClause struct {
	Start *nodePat `"MATCH" @@`
	Steps []*step  `@@*`
}

type nodePat struct {
	Var   string `"(" @Ident`
	Label string `( ":" @(Ident | Backtick) )? ")"`
}

type step struct {
	Left  string   `@( "<-" | "-" )`
	Rel   *relPat  `"[" @@ "]"`
	Right string   `@( "->" | "-" )`
	Node  *nodePat `@@`
}

type relPat struct {
	Var  string `@Ident?`
	Type string `":" @(Ident | Backtick)`
}

type condition struct {
	Var  string    `@Ident`
	Attr *attrCond `( @@`
	Excl string    `| "<>" @Ident )`
}

type attrCond struct {
	Name  string `"." @(Ident | Backtick)`
	Value string `"=" @(String | Int)`
}

type returnClause struct {
	Distinct bool     `"RETURN" @"DISTINCT"?`
	Vars     []string `@Ident ( "," @Ident )*`
}

var queryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Backtick", Pattern: "`[^`]*`"},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "NotEq", Pattern: `<>`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Arrow", Pattern: `<-|->|-`},
	{Name: "Punct", Pattern: `[()\[\]:.,=]`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "whitespace", Pattern: `\s+`},
})

var parser = participle.MustBuild[query](
	participle.Lexer(queryLexer),
	participle.Unquote("String", "Backtick"),
	participle.CaseInsensitive("Ident"),
	participle.Elide("whitespace"),
)
