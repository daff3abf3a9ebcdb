package driver

import (
	"github.com/tsilgen/tsilc/internal/ast"
	"github.com/tsilgen/tsilc/internal/errors"
	"github.com/tsilgen/tsilc/internal/il"
)

// defineClassesFunctionsEnums is phase 4: define a type stub for every
// class (base before derived, so SetSuper always resolves), a static
// method stub for every top-level function (FUN001 if none of the
// declarations sharing a name carries a body), and const-fold every enum
// member (ENM001/ENM002).
func (d *Driver) defineClassesFunctionsEnums(stmts []ast.Stmt) error {
	var classes []*ast.ClassDecl
	funcsByName := make(map[string][]*ast.FuncDecl)
	var funcOrder []string
	var enums []*ast.EnumDecl

	for _, s := range stmts {
		switch n := s.(type) {
		case *ast.ClassDecl:
			classes = append(classes, n)
		case *ast.FuncDecl:
			if _, seen := funcsByName[n.Name]; !seen {
				funcOrder = append(funcOrder, n.Name)
			}
			funcsByName[n.Name] = append(funcsByName[n.Name], n)
		case *ast.EnumDecl:
			enums = append(enums, n)
		}
	}

	ordered, err := topoSortClasses(classes)
	if err != nil {
		return err
	}
	for _, c := range ordered {
		d.defineClass(c)
	}
	for _, c := range ordered {
		if c.Super != "" {
			super := d.reg.classTypes[c.Super]
			d.reg.classTypes[c.Name].SetSuper(super)
		}
	}

	for _, name := range funcOrder {
		decls := funcsByName[name]
		hasBody := false
		for _, fd := range decls {
			if fd.Body != nil {
				hasBody = true
			}
		}
		if !hasBody {
			return errors.New(errors.FUN001, decls[0].Position(), "function %q declared without a body", name)
		}
		first := decls[0]
		paramCount := len(first.Params)
		m := d.asm.DefineMethod(d.program, name, true, false, paramCount)
		d.reg.functions[name] = m
		if idx, ok := restIndex(first.Params); ok {
			d.reg.functionRest[name] = FunctionRest{Index: idx, RegularCount: idx}
		}
	}

	for _, en := range enums {
		if err := d.defineEnum(en); err != nil {
			return err
		}
	}

	return nil
}

func restIndex(params []ast.Param) (int, bool) {
	for i, p := range params {
		if p.Rest {
			return i, true
		}
	}
	return 0, false
}

// topoSortClasses orders classes base-before-derived (a three-color DFS
// over the Super edge), matching spec.md §3 invariant 1 ("a type's Super token
// always refers to a type defined earlier in the assembly").
func topoSortClasses(classes []*ast.ClassDecl) ([]*ast.ClassDecl, error) {
	byName := make(map[string]*ast.ClassDecl, len(classes))
	for _, c := range classes {
		byName[c.Name] = c
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(classes))
	var order []*ast.ClassDecl

	var visit func(c *ast.ClassDecl) error
	visit = func(c *ast.ClassDecl) error {
		switch color[c.Name] {
		case black:
			return nil
		case gray:
			return errors.New(errors.AST002, c.Position(), "class %q participates in an inheritance cycle", c.Name)
		}
		color[c.Name] = gray
		if super, ok := byName[c.Super]; ok {
			if err := visit(super); err != nil {
				return err
			}
		}
		color[c.Name] = black
		order = append(order, c)
		return nil
	}

	for _, c := range classes {
		if err := visit(c); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// defineClass defines c's type stub, its property-bag field, and a stub
// for every static field (instance fields are initialized into the
// property bag by phase 7, not registered individually — see
// registries.instanceFieldBag).
func (d *Driver) defineClass(c *ast.ClassDecl) {
	t := d.asm.DefineType(c.Name, il.KindClass)
	d.reg.classTypes[c.Name] = t
	d.reg.classSuper[c.Name] = c.Super
	d.reg.instanceFieldBag[c.Name] = d.asm.DefineField(t, "$bag", false, "Object")

	d.reg.staticFields[c.Name] = make(map[string]*il.FieldDef)
	for _, f := range c.Fields {
		if f.Static {
			d.reg.staticFields[c.Name][f.Name] = d.asm.DefineField(t, f.Name, true, "Object")
		}
	}
}

// defineEnum const-folds every member of en (spec.md §4.5, §8 property 8):
// a bare Literal or a binary/unary expression over already-folded sibling
// members and literals evaluates at compile time; anything else is
// ENM001. A member with no initializer auto-increments from the previous
// numeric member, starting at 0, matching the surface language's plain
// `enum` semantics; this is applied uniformly rather than only for
// `const enum` declarations, a simplification that holds since nothing
// downstream distinguishes the two once membership is
// known.
func (d *Driver) defineEnum(en *ast.EnumDecl) error {
	members := make(map[string]interface{}, len(en.Members))
	reverse := make(map[float64]string, len(en.Members))
	kind := EnumNumeric
	sawString := false
	sawNumeric := false

	var nextAuto float64
	for _, m := range en.Members {
		var value interface{}
		if m.InitExpr == nil {
			value = nextAuto
		} else {
			v, err := evalConstExpr(m.InitExpr, members, en.Name)
			if err != nil {
				return err
			}
			value = v
		}
		members[m.Name] = value
		if f, ok := value.(float64); ok {
			reverse[f] = m.Name
			nextAuto = f + 1
			sawNumeric = true
		} else {
			sawString = true
		}
	}
	if sawString && sawNumeric {
		kind = EnumHeterogeneous
	} else if sawString {
		kind = EnumString
	}

	d.reg.enumMembers[en.Name] = members
	d.reg.enumReverse[en.Name] = reverse
	d.reg.enumKind[en.Name] = kind
	return nil
}

// evalConstExpr evaluates a const-enum initializer expression, consulting
// siblings already folded into members (ENM002 if an identifier names an
// undefined one) and failing with ENM001 for anything not reducible to a
// literal/identifier/unary/binary combination.
func evalConstExpr(e ast.Expr, members map[string]interface{}, enumName string) (interface{}, error) {
	switch n := e.(type) {
	case *ast.Literal:
		switch n.Kind {
		case ast.LitNumber:
			return n.Value.(float64), nil
		case ast.LitString:
			return n.Value.(string), nil
		default:
			return nil, errors.New(errors.ENM001, n.Position(), "enum member initializer must be a constant number or string")
		}
	case *ast.Identifier:
		if v, ok := members[n.Name]; ok {
			return v, nil
		}
		return nil, errors.New(errors.ENM002, n.Position(), "enum %q has no member %q defined before this reference", enumName, n.Name)
	case *ast.Grouping:
		return evalConstExpr(n.Inner, members, enumName)
	case *ast.UnaryOp:
		v, err := evalConstExpr(n.Operand, members, enumName)
		if err != nil {
			return nil, err
		}
		f, ok := v.(float64)
		if !ok {
			return nil, errors.New(errors.ENM001, n.Position(), "unary %q requires a numeric operand", n.Op)
		}
		switch n.Op {
		case "-":
			return -f, nil
		case "+":
			return f, nil
		case "~":
			return float64(^int64(f)), nil
		default:
			return nil, errors.New(errors.ENM001, n.Position(), "unsupported const unary operator %q", n.Op)
		}
	case *ast.BinOp:
		lv, err := evalConstExpr(n.Left, members, enumName)
		if err != nil {
			return nil, err
		}
		rv, err := evalConstExpr(n.Right, members, enumName)
		if err != nil {
			return nil, err
		}
		if ls, ok := lv.(string); ok {
			rs, ok := rv.(string)
			if !ok || n.Op != "+" {
				return nil, errors.New(errors.ENM001, n.Position(), "unsupported const string operator %q", n.Op)
			}
			return ls + rs, nil
		}
		lf, lok := lv.(float64)
		rf, rok := rv.(float64)
		if !lok || !rok {
			return nil, errors.New(errors.ENM001, n.Position(), "unsupported const operand types for %q", n.Op)
		}
		switch n.Op {
		case "+":
			return lf + rf, nil
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			return lf / rf, nil
		case "%":
			return float64(int64(lf) % int64(rf)), nil
		case "<<":
			return float64(int64(lf) << uint(int64(rf))), nil
		case ">>":
			return float64(int64(lf) >> uint(int64(rf))), nil
		case "|":
			return float64(int64(lf) | int64(rf)), nil
		case "&":
			return float64(int64(lf) & int64(rf)), nil
		case "^":
			return float64(int64(lf) ^ int64(rf)), nil
		default:
			return nil, errors.New(errors.ENM001, n.Position(), "unsupported const binary operator %q", n.Op)
		}
	default:
		return nil, errors.New(errors.ENM001, e.Position(), "enum member initializer is not a constant expression")
	}
}
