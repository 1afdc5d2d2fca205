package graph

import "strings"

// IsInnerClass reports whether a dotted class name denotes a nested class.
func IsInnerClass(name string) bool {
	return strings.Contains(name, "$")
}

// EnclosingClassName returns the outermost class of name, or name itself.
func EnclosingClassName(name string) string {
	if i := strings.IndexByte(name, '$'); i >= 0 {
		return name[:i]
	}
	return name
}

// InnerClassName returns the part after the first '$', or "".
func InnerClassName(name string) string {
	if i := strings.IndexByte(name, '$'); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// ShortName strips the package from a dotted class name.
func ShortName(name string) string {
	return name[strings.LastIndexByte(name, '.')+1:]
}

// PackageName returns the package of a dotted class name, "" for the
// default package.
func PackageName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// PackageIdentifiers splits the package of name into its segments.
func PackageIdentifiers(name string) []string {
	pkg := PackageName(name)
	if pkg == "" {
		return nil
	}
	return strings.Split(pkg, ".")
}

// MethodLabel is the name a call is counted under on its edge. With merged
// inner classes a call into Outer$Inner.m is labelled "Inner.m".
func MethodLabel(class, method string, mergeInner bool) string {
	if mergeInner && IsInnerClass(class) {
		return strings.ReplaceAll(InnerClassName(class), "$", ".") + "." + method
	}
	return method
}
