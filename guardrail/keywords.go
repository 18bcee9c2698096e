package guardrail

// DefaultSubjectKeywords returns the built-in base keyword lists per
// subject. Entries may carry accents or punctuation; they are normalized
// on expansion.
func DefaultSubjectKeywords() map[string][]string {
	return map[string][]string{
		"codigo": {
			"código", "codigo fonte", "git", "github", "gitlab", "merge", "branch",
			"commit", "pull request", "rebase", "cherry pick", "conflito",
			"repositório", "versionamento", "refatoração", "code review",
			"clean code", "bug", "debug", "depuração", "stack trace", "exceção",
			"teste unitário", "testes", "tdd", "mock", "api", "rest", "graphql",
			"endpoint", "backend", "frontend", "fullstack", "html", "css",
			"javascript", "typescript", "react", "angular", "vue", "node",
			"nodejs", "npm", "yarn", "webpack", "framework", "biblioteca",
			"dependência", "pacote", "módulo", "função", "método", "classe",
			"interface", "design pattern", "padrão de projeto", "arquitetura",
			"microsserviço", "monolito", "solid", "ide", "vscode", "compilador",
			"build", "lint", "linter", "software", "desenvolvimento", "sistema",
			"aplicação", "app", "autenticação", "jwt", "oauth", "websocket",
		},
		"programacao": {
			"programação", "programar", "linguagem de programação", "python",
			"java", "golang", "rust", "kotlin", "swift", "php", "ruby", "csharp",
			"dotnet", "scala", "elixir", "haskell", "javascript", "typescript",
			"variável", "constante", "loop", "laço", "condicional", "if", "else",
			"switch", "algoritmo", "complexidade", "recursão", "ponteiro",
			"array", "vetor", "matriz", "lista", "dicionário", "hashmap",
			"string", "inteiro", "objeto", "herança", "polimorfismo",
			"encapsulamento", "orientação a objetos", "programação funcional",
			"closure", "lambda", "callback", "promise", "async", "await",
			"thread", "goroutine", "concorrência", "paralelismo", "sintaxe",
			"compilação", "interpretador", "tipagem", "generics", "estrutura de dados",
			"fila", "pilha", "árvore", "grafo", "ordenação", "busca binária",
			"exception", "try catch", "erro de compilação", "função", "método",
		},
		"dados": {
			"dados", "ciência de dados", "análise de dados", "engenharia de dados",
			"sql", "banco de dados", "query", "consulta", "tabela", "join",
			"índice", "postgres", "postgresql", "mysql", "mongodb", "nosql",
			"pandas", "numpy", "dataframe", "jupyter", "notebook", "etl", "elt",
			"pipeline de dados", "data lake", "data warehouse", "lakehouse",
			"spark", "pyspark", "hadoop", "kafka", "airflow", "dbt", "bigquery",
			"snowflake", "redshift", "databricks", "parquet", "csv", "json",
			"dataset", "machine learning", "aprendizado de máquina",
			"deep learning", "regressão", "classificação", "clusterização",
			"estatística", "média", "mediana", "desvio padrão", "correlação",
			"probabilidade", "visualização", "gráfico", "dashboard", "power bi",
			"tableau", "metabase", "matplotlib", "seaborn", "scikit learn",
			"tensorflow", "pytorch", "modelo preditivo", "feature engineering",
			"normalização", "outlier", "amostragem", "big data",
		},
		"devops": {
			"devops", "sre", "infraestrutura", "infra", "docker", "dockerfile",
			"container", "contêiner", "kubernetes", "k8s", "helm", "pod",
			"cluster", "terraform", "ansible", "pulumi", "ci/cd", "ci", "cd",
			"integração contínua", "entrega contínua", "deploy", "deployment",
			"pipeline", "jenkins", "github actions", "gitlab ci", "argocd",
			"cloud", "nuvem", "aws", "azure", "gcp", "lambda",
			"serverless", "observabilidade", "monitoramento", "prometheus",
			"grafana", "alertmanager", "logs", "tracing", "opentelemetry",
			"métricas", "nginx", "load balancer", "balanceador de carga", "dns",
			"linux", "bash", "shell", "servidor", "vpn", "firewall", "escalabilidade",
			"alta disponibilidade", "backup", "rollback", "canary", "blue green",
			"iac", "infraestrutura como código", "vault", "secrets",
		},
	}
}

// DefaultOffTopicKeywords returns the built-in list of words that mark a
// question as out of scope for every subject.
func DefaultOffTopicKeywords() []string {
	return []string{
		"receita", "bolo", "culinária", "cozinhar", "churrasco", "sobremesa",
		"futebol", "campeonato", "novela", "fofoca", "celebridade", "horóscopo",
		"astrologia", "signo", "tarô", "namorada", "namorado",
		"piada", "loteria", "aposta", "maquiagem", "emagrecer", "dieta",
		"viagem", "turismo", "religião", "eleição", "partido político",
		"recipe", "cake", "soccer", "horoscope", "gossip", "joke",
	}
}
