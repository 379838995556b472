// Command ducklake-init prepares a DuckLake environment inside a container:
// it renders the DuckDB rc file, waits for the catalog database and the
// object store, makes sure the lake bucket exists, attaches the lake and
// then idles until stopped.
package main

func main() {
	Execute()
}
