package parse

// Resolver for C declarations. Turns a preprocessed token stream into
// declared names with canonical types, struct/union/enum definitions
// and pragmas. Function bodies are skipped.
//
//
// Glossary:
//
// Declarator
// ----------
//
// A declarator is the part of a declaration that specifies
// the name that is to be introduced into the program.
//
// e.g.
// unsigned int a, *b, **c, *const*d, *volatile*e ;
//              ^  ^^  ^^^  ^^^^^^^^^  ^^^^^^^^^^^
//
// Direct Declarator
// -----------------
//
// A direct declarator is missing the pointer prefix.
//
// e.g.
// unsigned int a[32], b[];
//              ^^^^^  ^^^
//
// Abstract Declarator
// -------------------
//
// A declarator missing an identifier.
//
// e.g.
// int (*)(int), char *[4]
//     ^^^^^^^^       ^^^^
//
// Typedef Name
// ------------
//
// An identifier bound by typedef. Whether "(T)" groups a declarator or
// opens a parameter list depends on whether T is one, so the parser
// consults the session's TypedefEnv as it goes.
