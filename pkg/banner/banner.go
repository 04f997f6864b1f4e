package banner

import "fmt"

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗██████╗ ██████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔══██╗██╔══██╗
██║     ███████║███████║   ██║   ██║  ██║██████╔╝
██║     ██╔══██║██╔══██║   ██║   ██║  ██║██╔══██╗
╚██████╗██║  ██║██║  ██║   ██║   ██████╔╝██████╔╝
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═════╝ ╚═════╝
`

// Print renders the startup banner for an interactive session.
func Print(room, user, dbPath, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Session ====================================================")
	fmt.Printf("Room:     %s\n", room)
	fmt.Printf("User:     %s\n", user)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config sources: %s\n", source)
	}
	fmt.Println("\nType a message and press enter. Ctrl-C or Ctrl-D to leave.")
	fmt.Println("===============================================================")
}
