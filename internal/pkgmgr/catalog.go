package pkgmgr

// DefaultRegistry returns the offline package catalog shipped with vos.
// Sources are script modules that assign their public API to `exports`.
func DefaultRegistry() *CatalogRegistry {
	return NewCatalogRegistry(
		Package{
			Name:        "lodash",
			Version:     "4.17.21",
			Description: "Utility functions for lists and strings",
			Source:      lodash4,
		},
		Package{
			Name:        "lodash",
			Version:     "3.10.1",
			Description: "Utility functions for lists and strings",
			Source:      lodash3,
		},
		Package{
			Name:        "left-pad",
			Version:     "1.3.0",
			Description: "String left pad",
			Source:      leftPad,
		},
		Package{
			Name:        "chalk",
			Version:     "5.3.0",
			Description: "Terminal string styling",
			Source:      chalk,
		},
		Package{
			Name:         "banner",
			Version:      "0.2.0",
			Description:  "Boxed text banners",
			Dependencies: []string{"left-pad@^1.0.0", "chalk"},
			Source:       banner,
		},
	)
}

const lodash4 = `def chunk(items, size):
    out = []
    for i in range(0, len(items), size):
        out.append(items[i:i + size])
    return out

def capitalize(s):
    if not s:
        return s
    return s[0].upper() + s[1:].lower()

def uniq(items):
    seen = {}
    out = []
    for x in items:
        if x not in seen:
            seen[x] = True
            out.append(x)
    return out

exports = struct(chunk = chunk, capitalize = capitalize, uniq = uniq, VERSION = "4.17.21")
`

const lodash3 = `def chunk(items, size):
    out = []
    for i in range(0, len(items), size):
        out.append(items[i:i + size])
    return out

exports = struct(chunk = chunk, VERSION = "3.10.1")
`

const leftPad = `def left_pad(s, n, ch = " "):
    s = str(s)
    if len(s) >= n:
        return s
    return ch * (n - len(s)) + s

exports = struct(left_pad = left_pad)
`

const chalk = `def _wrap(code):
    def style(s):
        return "\033[" + code + "m" + str(s) + "\033[0m"
    return style

exports = struct(
    red = _wrap("31"),
    green = _wrap("32"),
    yellow = _wrap("33"),
    bold = _wrap("1"),
)
`

const banner = `pad = require("left-pad")

def box(text, width = 0):
    w = max(width, len(text))
    line = "+" + "-" * (w + 2) + "+"
    return "\n".join([line, "| " + pad.left_pad(text, w) + " |", line])

exports = struct(box = box)
`
