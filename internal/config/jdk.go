package config

// DefaultJDKPackages returns the packages of the Java platform and of common
// JVM runtime internals. Blocking them leaves only application calls in the
// graph.
func DefaultJDKPackages() []string {
	return []string{
		// Core platform
		"java",
		"javax",
		"jdk",

		// Vendor internals
		"sun",
		"com.sun",
		"com.oracle",
		"oracle",

		// Standards APIs shipped with the JDK
		"org.ietf.jgss",
		"org.omg",
		"org.w3c.dom",
		"org.xml.sax",
	}
}
